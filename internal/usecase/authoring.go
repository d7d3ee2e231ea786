package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

// Author signs and publishes notes. With a delegation tag the local key
// signs; otherwise a bound remote signer does; otherwise the local key does.
type Author struct {
	keys       func() *KeyHolder
	signer     *SignerSession
	delegation *DelegationManager
	relays     *RelaySet
	remote     RemoteSigner
	dispatcher *Dispatcher
	timeout    time.Duration
	emit       emitFunc
}

func NewAuthor(
	keys func() *KeyHolder,
	signer *SignerSession,
	delegation *DelegationManager,
	relays *RelaySet,
	remote RemoteSigner,
	dispatcher *Dispatcher,
	timeout time.Duration,
	emit emitFunc,
) *Author {
	return &Author{
		keys:       keys,
		signer:     signer,
		delegation: delegation,
		relays:     relays,
		remote:     remote,
		dispatcher: dispatcher,
		timeout:    timeout,
		emit:       emit,
	}
}

// PublishNote publishes a text note and resolves with its event id. A note
// the delegation would not cover is refused rather than published.
func (a *Author) PublishNote(ctx context.Context, content string) *utils.Pending[string] {
	ctx, span := tracer.Start(ctx, "Session.Usecase.PublishNote")
	defer span.End()

	tag, err := a.delegation.DelegationTag(ctx)
	if err != nil {
		span.RecordError(err)
		return utils.Resolved[string]("", domain.SigningError{Err: err})
	}

	keys := a.keys()
	ev := nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   content,
	}

	signer, relay, bound := a.signer.Binding()
	remote := tag == nil && bound

	if tag != nil {
		ev.Tags = append(ev.Tags, tag.Tag())
	}

	targets := a.relays.PublishTargets()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	job := Dispatch(pctx, a.dispatcher, func(ctx context.Context, tr Transport) (string, error) {
		if remote {
			ev.PubKey = signer
			signed, err := a.remote.SignEvent(ctx, tr, keys.Identity(), relay, signer, ev)
			if err != nil {
				return "", domain.SigningError{Err: err}
			}
			if signed.PubKey != signer {
				return "", domain.SigningError{Err: fmt.Errorf("signed by %s, expected %s", signed.PubKey, signer)}
			}
			ev = signed
		} else if err := keys.Sign(&ev); err != nil {
			return "", domain.SigningError{Err: err}
		}

		if ok, err := ev.CheckSignature(); !ok {
			if err == nil {
				err = nostrconnect.ErrInvalidSignature
			}
			return "", domain.SigningError{Err: err}
		}
		if _, err := nostrconnect.VerifyEventDelegation(&ev); err != nil {
			return "", domain.SigningError{Err: err}
		}

		if err := tr.Publish(ctx, targets, ev); err != nil {
			return "", domain.TransportError{Op: "publish", Err: err}
		}
		return ev.ID, nil
	})

	job.Then(func(id string, err error) {
		cancel()
		if err != nil {
			slog.WarnContext(
				pctx, "publish failed",
				slog.String("error", err.Error()),
				slog.String("module", "author"),
			)
			return
		}
		a.emit.emit(context.WithoutCancel(pctx), domain.EventNotePublished, id)
	})
	return job
}
