package platformtest

import (
	"context"

	"github.com/Formula-SAE/taskbot/internal/platform"
)

// Responder records interaction answers. Update is applied to the interaction's
// message on the fake platform, the way the platform applies an update response.
type Responder struct {
	Platform    *Fake
	Interaction *platform.Interaction

	Replies   []string
	FollowUps []string
	Updates   []platform.MessageEdit
	Modals    []platform.Modal
}

func NewResponder(f *Fake, in *platform.Interaction) *Responder {
	return &Responder{Platform: f, Interaction: in}
}

func (r *Responder) Reply(_ context.Context, content string) error {
	r.Replies = append(r.Replies, content)
	return nil
}

func (r *Responder) Update(ctx context.Context, edit platform.MessageEdit) error {
	r.Updates = append(r.Updates, edit)
	if r.Interaction == nil || r.Interaction.Message == nil {
		return nil
	}
	m := r.Interaction.Message
	updated, err := r.Platform.EditMessage(ctx, m.ChannelID, m.ID, edit)
	if err != nil {
		return err
	}
	r.Interaction.Message = updated
	return nil
}

func (r *Responder) ShowModal(_ context.Context, modal platform.Modal) error {
	r.Modals = append(r.Modals, modal)
	return nil
}

func (r *Responder) FollowUp(_ context.Context, content string) error {
	r.FollowUps = append(r.FollowUps, content)
	return nil
}

// Said reports whether any reply or follow-up was sent.
func (r *Responder) Said() bool {
	return len(r.Replies)+len(r.FollowUps) > 0
}

var _ platform.Responder = (*Responder)(nil)
