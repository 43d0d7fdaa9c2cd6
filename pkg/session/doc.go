/*
Package session hosts many workflow instances side by side.

Each session owns a namespace of the artifact store, so instances never share
mutable state. Calls for one session are serialized by a reference counted
local lock and, when configured, a distributed lock. Live instances are kept
in an expiring cache; an instance that fell out of the cache, or that was
suspended by another process, is rebuilt from its persisted cursor.
*/
package session
