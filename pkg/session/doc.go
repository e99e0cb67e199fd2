/*
Package session implements project session management on top of a StateStore.

A session is one content project: its world state is persisted as a versioned
domain.Snapshot. The Manager serializes every read-modify-write of a session with
a reference-counted in-process lock and, when configured, a DistributedLocker so
that replicas sharing a store never interleave two runs on the same project.
*/
package session
