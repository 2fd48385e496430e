// Package store holds the session catalog contract: SessionRun rows and the
// repository that records them. Postgres and in-memory implementations live
// under internal/storage; nothing here imports a driver.
package store
