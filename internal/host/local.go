package host

import (
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

// Host-local operations. These are not replicated intents: the host's own
// UI invokes them directly, but they run through the same mutate-then-
// broadcast path as everything else.

// AddVideo appends a video on behalf of the host, subject to the same
// validation rules as a guest submission.
func (r *Replicator) AddVideo(v domain.Video) error {
	r.mu.Lock()
	err := r.validateAdd(v)
	if err == nil {
		err = r.room.AddVideo(v)
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.broadcast()
	return nil
}

// Vote toggles the host's own vote on videoID: voting for the video that
// already holds the host's vote clears it.
func (r *Replicator) Vote(videoID string) error {
	r.mu.Lock()
	current := domain.CurrentVote(r.room.Videos, r.hostUser.ID)
	unvote := current != nil && current.ID == videoID
	err := r.room.CastVote(r.hostUser.ID, videoID, unvote)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	r.broadcast()
	return nil
}

// RemoveVideo is a host-only privilege; removing an unknown id is a no-op.
func (r *Replicator) RemoveVideo(videoID string) {
	r.mu.Lock()
	removed := r.room.RemoveVideo(videoID)
	r.mu.Unlock()

	if !removed {
		return
	}
	log.Info().Str("module", "host").Str("video", videoID).Msg("video removed")
	r.broadcast()
}

// AdvancePhase drives adding→voting→results. A refused transition leaves
// the room untouched and nothing is broadcast.
func (r *Replicator) AdvancePhase() error {
	r.mu.Lock()
	err := r.room.AdvancePhase()
	phase := r.room.Phase
	r.mu.Unlock()

	if err != nil {
		return err
	}
	log.Info().Str("module", "host").Str("phase", string(phase)).Msg("phase advanced")
	r.broadcast()
	return nil
}

// ResetForNewRound clears the playlist and starts a fresh adding phase,
// optionally under a new topic ("play again").
func (r *Replicator) ResetForNewRound(topic string) {
	r.mu.Lock()
	r.room.ResetForNewRound(topic)
	r.mu.Unlock()

	log.Info().Str("module", "host").Str("topic", topic).Msg("new round")
	r.broadcast()
}
