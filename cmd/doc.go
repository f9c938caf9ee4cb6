// Package cmd implements the artexin command line.
//
// Commands:
//   - serve: the HTTP API plus an in-process worker pool. Jobs are persisted
//     in the configured store (memory or Postgres), queued on the configured
//     queue (memory, Postgres or Pub/Sub) and handled by the FETCHABLE and
//     STANDALONE handlers. Finished archives are optionally mirrored to a
//     local directory or a GCS bucket, and completion events can be
//     published to Pub/Sub.
//   - worker: the worker pool only, for deployments where the API and the
//     workers scale separately over a shared queue.
//   - collect, batch, fetch-list: run the collection pipeline directly,
//     without the job machinery.
//   - verify: check a signed archive against a keyring.
//   - migrate: apply the Postgres schema.
//
// Configuration comes from an optional YAML file (--config) overlaid by
// ARTEXIN_* environment variables, e.g. ARTEXIN_SERVER_PORT or
// ARTEXIN_STORE_DSN. SIGINT and SIGTERM trigger a graceful drain.
package cmd
