package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/userdeck/pkg/apperr"
	"github.com/platinummonkey/userdeck/pkg/auth"
	"github.com/platinummonkey/userdeck/pkg/contextkeys"
	"github.com/platinummonkey/userdeck/pkg/httputil"
	"github.com/platinummonkey/userdeck/pkg/middleware"
	"github.com/platinummonkey/userdeck/pkg/procedure"
	"github.com/platinummonkey/userdeck/pkg/rbac"
	"github.com/platinummonkey/userdeck/pkg/users"
)

// inputFunc assembles the procedure input from the request: sanitized
// body, path variables, query parameters, or a combination
type inputFunc func(rc *middleware.RequestContext) (json.RawMessage, error)

func bodyInput(rc *middleware.RequestContext) (json.RawMessage, error) {
	if len(rc.Body) == 0 {
		return json.RawMessage("{}"), nil
	}
	return rc.Body, nil
}

func pathIDInput(rc *middleware.RequestContext) (json.RawMessage, error) {
	id, err := httputil.PathVar(rc.Request, "id")
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"id": id})
}

// bodyWithPathIDInput merges the path ID over the body so the target of
// an update is always the routed resource, whatever the body claims
func bodyWithPathIDInput(rc *middleware.RequestContext) (json.RawMessage, error) {
	merged := make(map[string]interface{})
	if len(rc.Body) > 0 {
		if err := json.Unmarshal(rc.Body, &merged); err != nil {
			return nil, apperr.Validation("Request body must be a JSON object").Wrap(err)
		}
	}
	id, err := httputil.PathVar(rc.Request, "id")
	if err != nil {
		return nil, err
	}
	merged["id"] = id
	return json.Marshal(merged)
}

func listInput(rc *middleware.RequestContext) (json.RawMessage, error) {
	q := rc.Request.URL.Query()
	page, err := httputil.QueryInt(rc.Request, "page", 0)
	if err != nil {
		return nil, err
	}
	perPage, err := httputil.QueryInt(rc.Request, "per_page", 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{
		"page":     page,
		"per_page": perPage,
		"search":   q.Get("search"),
		"role":     q.Get("role"),
	})
}

// dispatch adapts a procedure into a chain handler: resolve the caller,
// assemble the input, invoke, and shape the response. A missing credential
// resolves to a nil AuthContext so public procedures still run; any other
// resolution failure is an error even on public routes.
func (s *Server) dispatch(proc *procedure.Procedure, successStatus int, input inputFunc) middleware.Handler {
	return func(ctx context.Context, rc *middleware.RequestContext) middleware.Result {
		authCtx, err := s.resolver.Resolve(ctx, rc.Request)
		if err != nil {
			if !errors.Is(err, auth.ErrNoCredential) {
				s.observeAuth("failed")
				return middleware.Fail(err)
			}
			authCtx = nil
			s.observeAuth("anonymous")
		} else {
			s.observeAuth("ok")
			ctx = contextkeys.WithAuth(ctx, authCtx)
			ctx = contextkeys.WithUserID(ctx, authCtx.User.ID)
		}
		rc.Auth = authCtx

		payload, err := input(rc)
		if err != nil {
			return middleware.Fail(err)
		}

		out, err := proc.Invoke(ctx, &procedure.Call{
			Auth:  authCtx,
			Input: payload,
			Path:  rc.Path,
		})
		if err != nil {
			return middleware.Fail(err)
		}
		return middleware.Terminal(middleware.JSONResponse(successStatus, out))
	}
}

func (s *Server) observeAuth(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.AuthResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}

// decodeInput unmarshals a procedure input. The payload has already passed
// body validation, so a mismatch here is a shape problem (array where an
// object is expected, wrong field type) and reads as a validation failure,
// not a server fault.
func decodeInput(input json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(input, v); err != nil {
		return apperr.Validation("Invalid request payload").Wrap(err)
	}
	return nil
}

// createUser requires any authenticated caller
func (s *Server) createUser() *procedure.Procedure {
	return procedure.Authenticated("users.create", func(ctx context.Context, call *procedure.Call) (interface{}, error) {
		var in users.CreateInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		return s.service.Create(ctx, in)
	})
}

// getUser is public
func (s *Server) getUser() *procedure.Procedure {
	return procedure.Public("users.getById", func(ctx context.Context, call *procedure.Call) (interface{}, error) {
		var in struct {
			ID string `json:"id"`
		}
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		return s.service.Get(ctx, in.ID)
	})
}

// listUsers is public
func (s *Server) listUsers() *procedure.Procedure {
	return procedure.Public("users.list", func(ctx context.Context, call *procedure.Call) (interface{}, error) {
		var in users.ListInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		return s.service.List(ctx, in)
	})
}

// updateUser admits admins and moderators, or the profile's owner
func (s *Server) updateUser() *procedure.Procedure {
	return procedure.RoleRestricted("users.update", rbac.AdminOrModerator, func(ctx context.Context, call *procedure.Call) (interface{}, error) {
		var in users.UpdateInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		// Only privileged callers may change roles; owners edit their
		// profile, not their privileges.
		if in.Role != nil && !rbac.AdminOrModerator.Contains(call.Auth.User.Role) {
			in.Role = nil
		}
		return s.service.Update(ctx, in)
	}).AllowSelf(func(authCtx *auth.AuthContext, input json.RawMessage) bool {
		var in struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(input, &in); err != nil {
			return false
		}
		return in.ID != "" && in.ID == authCtx.User.ID
	})
}

// deleteUser is admin only
func (s *Server) deleteUser() *procedure.Procedure {
	return procedure.Admin("users.delete", func(ctx context.Context, call *procedure.Call) (interface{}, error) {
		var in struct {
			ID string `json:"id"`
		}
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		if err := s.service.Delete(ctx, in.ID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"success": true, "id": in.ID}, nil
	})
}

// healthz reports server and dependency health
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}

	status := http.StatusOK
	var checks []check

	run := func(name string, fn func() error) {
		if fn == nil {
			return
		}
		c := check{Name: name, Status: "ok"}
		if err := fn(); err != nil {
			c.Status = "failed"
			c.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
		checks = append(checks, c)
	}
	run("database", s.opts.DBCheck)
	run("redis", s.opts.RedisCheck)

	body := map[string]interface{}{
		"status": "ok",
		"checks": checks,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}

	httputil.WriteJSON(w, status, body)
}
