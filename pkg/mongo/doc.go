// Package mongo connects to MongoDB using MONGODB_* configuration.
//
// New retries the initial connect-and-ping with a fixed interval and gives up
// early when the context is cancelled. The conversation and message adapter in
// community/mongostore is built on the returned database handle.
//
// # Usage
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	checks := []httpserver.Check{{Name: "mongo", Fn: mongo.Healthcheck(db.Client())}}
//
// # See Also
//
// Documentation for the official driver: https://pkg.go.dev/go.mongodb.org/mongo-driver/v2.
package mongo
