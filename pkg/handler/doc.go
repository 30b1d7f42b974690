// Package handler provides typed HTTP handlers for the pulse REST surface.
//
// A HandlerFunc receives a Context and a request value decoded by a chain of
// binders, and returns a Response that renders itself:
//
//	h := handler.HandlerFunc[handler.Context, SendRequest](
//		func(ctx handler.Context, req SendRequest) handler.Response {
//			n, err := svc.Send(ctx, req)
//			if err != nil {
//				return handler.JSONError(err)
//			}
//			return handler.JSON(n, handler.WithJSONStatus(http.StatusCreated))
//		},
//	)
//
//	r.Post("/notifications/send", handler.Wrap(h,
//		handler.WithBinders[handler.Context, SendRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, SendRequest](handler.NewErrorHandler(log)),
//	))
//
// Every error body uses the same envelope: {"error":{"code":..,"message":..}}.
package handler
