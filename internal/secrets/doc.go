// package secrets stores the three persisted records of a sync run (API credentials, the OAuth
// token, and the playlist name to id cache) behind one [Store] interface.
//
// Backends:
//   - AWS Systems Manager Parameter Store (SecureString parameters)
//   - AWS Secrets Manager (secrets are created on first write)
//   - SQLite (the secrets table from the shared migrations)
//   - Redis
//   - in-memory, for tests and dry runs
//
// Records are opaque byte strings to the store. [GetJSON] and [PutJSON] handle encoding.
package secrets
