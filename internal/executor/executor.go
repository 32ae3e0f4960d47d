// Package executor composes the remote client and the store pool into
// the named workflows the chat and web surfaces consume.
package executor

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roselinebot/roseline/internal/store"
	"github.com/roselinebot/roseline/internal/vndb"
)

// Remote is the request/response surface of the VNDB client.
type Remote interface {
	Do(ctx context.Context, req vndb.Request) (vndb.Response, error)
}

// Store is the surface of the store worker pool the workflows use.
type Store interface {
	GetVN(ctx context.Context, id uint64) (*store.VN, error)
	GetHooks(ctx context.Context, vn store.VN) ([]store.Hook, error)
	GetVNData(ctx context.Context, id uint64) (*store.VNData, error)
	SearchVN(ctx context.Context, title string) ([]store.VN, error)
	PutVN(ctx context.Context, id uint64, title string) (store.VN, error)
	PutHook(ctx context.Context, vn store.VN, version, code string) (store.Hook, error)
	DeleteVN(ctx context.Context, id uint64) (int64, error)
	DeleteHook(ctx context.Context, vn store.VN, version string) (int64, error)
	CountVNs(ctx context.Context) (int64, error)
	CountHooks(ctx context.Context) (int64, error)
}

// Ref is a remote object reference parsed from free text (v1234, u9...).
type Ref struct {
	Kind vndb.RefKind
	ID   uint64
}

// ParseRef parses a bare reference token: a kind character followed by
// ASCII digits forming a positive integer, nothing else.
func ParseRef(text string) (Ref, bool) {
	if len(text) < 2 {
		return Ref{}, false
	}
	kind, ok := vndb.ParseRefKind(text[0])
	if !ok {
		return Ref{}, false
	}
	var id uint64
	for i := 1; i < len(text); i++ {
		ch := text[i]
		if ch < '0' || ch > '9' {
			return Ref{}, false
		}
		id = id*10 + uint64(ch-'0')
	}
	if id == 0 {
		return Ref{}, false
	}
	return Ref{Kind: kind, ID: id}, true
}

// Executor runs the composed workflows. It never touches the wire or
// the database directly, only through the Remote and Store handles.
type Executor struct {
	remote Remote
	store  Store
	log    zerolog.Logger
}

// New creates an executor over the given handles.
func New(remote Remote, st Store) *Executor {
	return &Executor{
		remote: remote,
		store:  st,
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// vns runs a remote request and decodes the response as VN records.
func (e *Executor) vns(ctx context.Context, req vndb.Request) ([]vndb.VNItem, error) {
	resp, err := e.remote.Do(ctx, req)
	if err != nil {
		e.log.Warn().Err(err).Stringer("request", req).Msg("remote request failed")
		return nil, errBadRemote()
	}
	results, err := resp.Results()
	if err != nil {
		e.log.Error().Err(err).Stringer("request", req).Msg("unexpected response")
		return nil, errBadRemoteResponse()
	}
	items, err := results.VNs()
	if err != nil {
		e.log.Error().Err(err).Msg("undecodable vn items")
		return nil, errBadRemoteResponse()
	}
	return items, nil
}

// GetVN fetches the remote VN record by id.
func (e *Executor) GetVN(ctx context.Context, id uint64) (vndb.VNItem, error) {
	items, err := e.vns(ctx, vndb.VNByID(id))
	if err != nil {
		return vndb.VNItem{}, err
	}
	if len(items) == 0 {
		return vndb.VNItem{}, errUnknownVN()
	}
	return items[0], nil
}

// FindVN resolves a title to a single remote VN record: exact lookup
// first, then the fuzzy search as fallback.
func (e *Executor) FindVN(ctx context.Context, title string) (vndb.VNItem, error) {
	items, err := e.vns(ctx, vndb.VNByExactTitle(title))
	if err != nil {
		return vndb.VNItem{}, err
	}
	if len(items) == 1 {
		return items[0], nil
	}

	items, err = e.vns(ctx, vndb.VNByFuzzyTitle(title))
	if err != nil {
		return vndb.VNItem{}, err
	}
	switch len(items) {
	case 0:
		return vndb.VNItem{}, errUnknownVN()
	case 1:
		return items[0], nil
	default:
		return vndb.VNItem{}, errTooMany(len(items), title)
	}
}

// GetVNLocal reads the locally stored VN, or nil if untracked.
func (e *Executor) GetVNLocal(ctx context.Context, id uint64) (*store.VN, error) {
	vn, err := e.store.GetVN(ctx, id)
	if err != nil {
		return nil, errInternal(err)
	}
	return vn, nil
}

// FindVNLocal resolves a title against the local store by substring
// search. Exactly one match resolves; several are an error; none is nil.
func (e *Executor) FindVNLocal(ctx context.Context, title string) (*store.VN, error) {
	vns, err := e.store.SearchVN(ctx, title)
	if err != nil {
		return nil, errInternal(err)
	}
	switch len(vns) {
	case 0:
		return nil, nil
	case 1:
		return &vns[0], nil
	default:
		return nil, errTooManyLocal(len(vns))
	}
}

// resolveLocal turns a free-form title into a locally stored VN:
// local substring search first, then the remote lookup, then the local
// row for the remote id. A VN known remotely but never stored is
// UnknownVN here: only workflows that insert rows create them.
func (e *Executor) resolveLocal(ctx context.Context, title string) (store.VN, error) {
	vn, err := e.FindVNLocal(ctx, title)
	if err != nil {
		return store.VN{}, err
	}
	if vn != nil {
		return *vn, nil
	}

	item, err := e.FindVN(ctx, title)
	if err != nil {
		return store.VN{}, err
	}
	vn, err = e.GetVNLocal(ctx, item.ID)
	if err != nil {
		return store.VN{}, err
	}
	if vn == nil {
		return store.VN{}, errUnknownVN()
	}
	return *vn, nil
}

// vnRef rejects references of any kind other than vn.
func vnRef(ref Ref) error {
	if ref.Kind != vndb.KindVN {
		return errInvalidVNID(ref.Kind, ref.ID)
	}
	return nil
}

// GetHook returns the stored VN and its hooks for a reference or title.
func (e *Executor) GetHook(ctx context.Context, refOrTitle string) (store.VNData, error) {
	if ref, ok := ParseRef(refOrTitle); ok {
		if err := vnRef(ref); err != nil {
			return store.VNData{}, err
		}
		data, err := e.store.GetVNData(ctx, ref.ID)
		if err != nil {
			return store.VNData{}, errInternal(err)
		}
		if data == nil {
			return store.VNData{}, errUnknownVN()
		}
		return *data, nil
	}

	vn, err := e.resolveLocal(ctx, refOrTitle)
	if err != nil {
		return store.VNData{}, err
	}
	hooks, err := e.store.GetHooks(ctx, vn)
	if err != nil {
		return store.VNData{}, errInternal(err)
	}
	return store.VNData{VN: vn, Hooks: hooks}, nil
}

// SetHook stores a hook for the VN named by a reference or title,
// inserting the VN row first when it is known remotely but not locally.
func (e *Executor) SetHook(ctx context.Context, refOrTitle, version, code string) (store.Hook, error) {
	var vn store.VN

	if ref, ok := ParseRef(refOrTitle); ok {
		if err := vnRef(ref); err != nil {
			return store.Hook{}, err
		}
		local, err := e.GetVNLocal(ctx, ref.ID)
		if err != nil {
			return store.Hook{}, err
		}
		if local != nil {
			vn = *local
		} else {
			item, err := e.GetVN(ctx, ref.ID)
			if err != nil {
				return store.Hook{}, err
			}
			if vn, err = e.putVN(ctx, item); err != nil {
				return store.Hook{}, err
			}
		}
	} else {
		item, err := e.FindVN(ctx, refOrTitle)
		if err != nil {
			return store.Hook{}, err
		}
		if vn, err = e.putVN(ctx, item); err != nil {
			return store.Hook{}, err
		}
	}

	hook, err := e.store.PutHook(ctx, vn, version, code)
	if err != nil {
		return store.Hook{}, errInternal(err)
	}
	return hook, nil
}

func (e *Executor) putVN(ctx context.Context, item vndb.VNItem) (store.VN, error) {
	vn, err := e.store.PutVN(ctx, item.ID, item.Title)
	if err != nil {
		return store.VN{}, errInternal(err)
	}
	return vn, nil
}

// DelHook removes the hook for one version of a VN. Returns the number
// of removed rows; zero means no such hook existed.
func (e *Executor) DelHook(ctx context.Context, refOrTitle, version string) (int64, error) {
	var vn store.VN

	if ref, ok := ParseRef(refOrTitle); ok {
		if err := vnRef(ref); err != nil {
			return 0, err
		}
		local, err := e.GetVNLocal(ctx, ref.ID)
		if err != nil {
			return 0, err
		}
		if local == nil {
			return 0, errUnknownVN()
		}
		vn = *local
	} else {
		var err error
		if vn, err = e.resolveLocal(ctx, refOrTitle); err != nil {
			return 0, err
		}
	}

	n, err := e.store.DeleteHook(ctx, vn, version)
	if err != nil {
		return 0, errInternal(err)
	}
	return n, nil
}

// DelVN removes the VN and all of its hooks. Returns the number of
// removed VN rows; zero means no such row, which is not an error.
func (e *Executor) DelVN(ctx context.Context, refOrTitle string) (int64, error) {
	var id uint64

	if ref, ok := ParseRef(refOrTitle); ok {
		if err := vnRef(ref); err != nil {
			return 0, err
		}
		id = ref.ID
	} else {
		vn, err := e.FindVNLocal(ctx, refOrTitle)
		if err != nil {
			return 0, err
		}
		if vn != nil {
			id = vn.ID
		} else {
			item, err := e.FindVN(ctx, refOrTitle)
			if err != nil {
				return 0, err
			}
			id = item.ID
		}
	}

	n, err := e.store.DeleteVN(ctx, id)
	if err != nil {
		return 0, errInternal(err)
	}
	return n, nil
}

// GetRemoteObject fetches the basic record of any remote object kind.
// Thin pass-through used for vXXX-style link expansion.
func (e *Executor) GetRemoteObject(ctx context.Context, kind vndb.RefKind, id uint64) (vndb.Results, error) {
	resp, err := e.remote.Do(ctx, vndb.GetByID(kind, id))
	if err != nil {
		e.log.Warn().Err(err).Str("kind", kind.Name()).Uint64("id", id).Msg("remote request failed")
		return vndb.Results{}, errBadRemote()
	}
	results, err := resp.Results()
	if err != nil {
		e.log.Error().Err(err).Msg("unexpected response")
		return vndb.Results{}, errBadRemoteResponse()
	}
	return results, nil
}

// Stats returns the local row counts, for the admin surface.
func (e *Executor) Stats(ctx context.Context) (vns, hooks int64, err error) {
	if vns, err = e.store.CountVNs(ctx); err != nil {
		return 0, 0, errInternal(err)
	}
	if hooks, err = e.store.CountHooks(ctx); err != nil {
		return 0, 0, errInternal(err)
	}
	return vns, hooks, nil
}

// LocalData reads the stored VN with hooks by id, for the admin surface.
func (e *Executor) LocalData(ctx context.Context, id uint64) (*store.VNData, error) {
	data, err := e.store.GetVNData(ctx, id)
	if err != nil {
		return nil, errInternal(err)
	}
	return data, nil
}

// LocalSearch runs the local substring search, for the admin surface.
func (e *Executor) LocalSearch(ctx context.Context, title string) ([]store.VN, error) {
	vns, err := e.store.SearchVN(ctx, title)
	if err != nil {
		return nil, errInternal(err)
	}
	return vns, nil
}
