// Package binder decodes HTTP request data into structs.
//
// JSON reads a size-limited body in strict mode. Query and Path fill fields
// tagged `query:"name"` and `path:"name"`; a `-` tag skips the field and
// pointer fields stay nil when the parameter is absent. Binders are composed
// by handler.WithBinders and each touches only its own tags:
//
//	type ListRequest struct {
//		UserID string `path:"id"`
//		Limit  int    `query:"limit"`
//		Unread *bool  `query:"unread"`
//	}
package binder
