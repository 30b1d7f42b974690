// Package logger builds the *slog.Logger used across pulse.
//
// New assembles a JSON or text slog.Handler from functional options and wraps
// it with a decorator that pulls attributes out of context.Context on every
// record (request ids, connection ids). Attribute helpers in attr.go keep key
// names consistent between the gateway, the fan-out engine and the
// notification dispatcher, so log queries like `connection_id=...` work across
// components.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.AppEnv, "pulse"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor(), logger.ConnectionExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.LogAttrs(ctx, slog.LevelInfo, "connection registered",
//	    logger.UserID(userID),
//	    logger.ConnectionID(connID),
//	)
//
// Helpers such as Error and UserID return an empty slog.Attr for nil input, so
// callers can pass them unconditionally.
package logger
