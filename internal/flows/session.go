package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
	"registryd/pkg/requestcontext"
)

// loginFlow authenticates a registrar and opens a session. It runs outside
// a transaction: credentials are checked against a read snapshot and the
// session itself lives in the session store, not the registry database.
type loginFlow struct{}

func (loginFlow) Capabilities() Capabilities { return Capabilities{} }

func (loginFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	login := fc.Command.Login
	if login == nil {
		return nil, epperr.New(epperr.CodeSyntaxError, "Malformed login command")
	}
	registrar, err := store.Get[model.Registrar](ctx, fc.Tx, store.Key{
		Kind: store.KindRegistrar,
		ID:   login.ClientID,
	})
	if store.IsNotFound(err) {
		return nil, epperr.New(epperr.CodeAuthenticationError, "Registrar with this client id is not registered")
	}
	if err != nil {
		return nil, err
	}
	if !registrar.CheckPassword(login.Password) {
		return nil, epperr.New(epperr.CodeAuthenticationError, "Registrar password is incorrect")
	}
	sessionID, err := fc.Sessions.Create(ctx, registrar.ID)
	if err != nil {
		return nil, err
	}
	fc.CreatedSessionID = sessionID
	return epp.Success(epperr.CodeSuccess, nil), nil
}

// logoutFlow ends the current session.
type logoutFlow struct{}

func (logoutFlow) Capabilities() Capabilities { return Capabilities{RequiresLogin: true} }

func (logoutFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	if err := fc.Sessions.Destroy(ctx, requestcontext.SessionID(ctx)); err != nil {
		return nil, err
	}
	fc.EndedSession = true
	return epp.Success(epperr.CodeSuccessEndingSession, nil), nil
}
