/*
Package session runs cascades in the background for long-lived adapters.

A Manager keeps a registry of runs, guarantees a single active run per root
(process-local locks plus an optional DistributedLocker) and exposes each
run's pending question or preview through Answer and Decide.
*/
package session
