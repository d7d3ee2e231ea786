package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

// DelegationManager requests, installs and serves the delegation credential.
// The stored credential is re-verified against the current identity on every
// read; a credential that does not verify is treated as absent.
type DelegationManager struct {
	store      RecordStore
	signer     *SignerSession
	remote     RemoteSigner
	dispatcher *Dispatcher
	identity   func() domain.Identity
	timeout    time.Duration
	emit       emitFunc
}

func NewDelegationManager(
	store RecordStore,
	signer *SignerSession,
	remote RemoteSigner,
	dispatcher *Dispatcher,
	identity func() domain.Identity,
	timeout time.Duration,
	emit emitFunc,
) *DelegationManager {
	return &DelegationManager{
		store:      store,
		signer:     signer,
		remote:     remote,
		dispatcher: dispatcher,
		identity:   identity,
		timeout:    timeout,
		emit:       emit,
	}
}

// RequestDelegation asks the bound signer for a credential limited to
// (notBefore, notAfter) and kinds. A nil notBefore means now. The result is
// a candidate for VerifyAndInstall; it is not installed here.
func (m *DelegationManager) RequestDelegation(ctx context.Context, notBefore *time.Time, notAfter time.Time, kinds []int) *utils.Pending[nostrconnect.DelegationCredential] {
	ctx, span := tracer.Start(ctx, "Session.Usecase.RequestDelegation")
	defer span.End()

	epoch := m.signer.Epoch()
	signer, relay, bound := m.signer.Binding()
	if !bound {
		span.RecordError(domain.ErrNotBound)
		return utils.Resolved(nostrconnect.DelegationCredential{}, domain.ErrNotBound)
	}

	// created_at>start is strict at second resolution; starting a second
	// back lets a note written right away pass.
	start := time.Now().Truncate(time.Second).Add(-time.Second)
	if notBefore != nil {
		start = *notBefore
	}
	cond := nostrconnect.NewConditions(&start, &notAfter, kinds)

	id := m.identity()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	job := Dispatch(rctx, m.dispatcher, func(ctx context.Context, tr Transport) (nostrconnect.DelegationCredential, error) {
		return m.remote.RequestDelegation(ctx, tr, id, relay, signer, cond)
	})

	result := utils.NewPending[nostrconnect.DelegationCredential]()
	job.Then(func(cred nostrconnect.DelegationCredential, err error) {
		cancel()
		if !m.signer.Current(epoch) {
			result.Resolve(nostrconnect.DelegationCredential{}, domain.ErrSuperseded)
			return
		}
		if err != nil {
			result.Resolve(nostrconnect.DelegationCredential{}, classify("delegate", relay, err))
			return
		}
		result.Resolve(cred, nil)
	})
	return result
}

// VerifyAndInstall persists candidate if it verifies for the own key.
func (m *DelegationManager) VerifyAndInstall(ctx context.Context, candidate nostrconnect.DelegationCredential) error {
	ctx, span := tracer.Start(ctx, "Session.Usecase.VerifyAndInstall")
	defer span.End()

	if err := candidate.Verify(m.identity().PublicKey); err != nil {
		err = domain.UntrustedDelegationError{Delegator: candidate.Delegator, Err: err}
		span.RecordError(err)
		m.emit.emit(ctx, domain.EventDelegationRejected, candidate.Delegator)
		return err
	}

	raw, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, domain.RecordDelegation, string(raw)); err != nil {
		span.RecordError(errors.Wrap(err, "store credential"))
		return errors.Wrap(err, "store credential")
	}

	slog.InfoContext(
		ctx, "delegation installed",
		slog.String("delegator", candidate.Delegator),
		slog.String("conditions", candidate.Conditions.String()),
		slog.String("module", "delegation"),
	)
	m.emit.emit(ctx, domain.EventDelegationInstalled, candidate.Delegator)
	return nil
}

// ActiveCredential returns the stored credential if it still verifies for
// the current identity. It does not check time bounds.
func (m *DelegationManager) ActiveCredential(ctx context.Context) (*nostrconnect.DelegationCredential, error) {
	raw, err := m.store.Get(ctx, domain.RecordDelegation)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read credential")
	}

	var cred nostrconnect.DelegationCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		slog.WarnContext(
			ctx, "stored credential is unreadable",
			slog.String("error", err.Error()),
			slog.String("module", "delegation"),
		)
		return nil, nil
	}

	if err := cred.Verify(m.identity().PublicKey); err != nil {
		slog.WarnContext(
			ctx, "stored credential failed verification",
			slog.String("delegator", cred.Delegator),
			slog.String("error", err.Error()),
			slog.String("module", "delegation"),
		)
		return nil, nil
	}
	return &cred, nil
}

// DelegationTag projects the active credential into an event tag.
func (m *DelegationManager) DelegationTag(ctx context.Context) (*nostrconnect.DelegationTag, error) {
	cred, err := m.ActiveCredential(ctx)
	if err != nil || cred == nil {
		return nil, err
	}
	tag := cred.Tag()
	return &tag, nil
}
