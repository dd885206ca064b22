package service

import "context"

type userIDKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFrom returns the user id stored by WithUserID.
func UserIDFrom(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(userIDKey{}).(int)
	return id, ok
}

// withActor adds the requesting user to activity metadata. Metadata that
// is not a map is left as is.
func withActor(ctx context.Context, meta any) any {
	id, ok := UserIDFrom(ctx)
	if !ok {
		return meta
	}
	switch m := meta.(type) {
	case nil:
		return map[string]any{"user_id": id}
	case map[string]any:
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		out["user_id"] = id
		return out
	}
	return meta
}
