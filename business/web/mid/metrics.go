package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/powsim/business/sys/metrics"
	"github.com/ardanlabs/powsim/business/web/errs"
	"github.com/ardanlabs/powsim/foundation/web"
)

// Metrics updates the prometheus request counters. When the handler fails
// the status is taken from the error the same way Errors will respond.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			v, verr := web.GetValues(ctx)
			if verr == nil {
				status := v.StatusCode
				if err != nil {
					status = errs.StatusOf(err)
				}
				metrics.ObserveRequest(r.Method, v.Route, status, v.Now)
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
