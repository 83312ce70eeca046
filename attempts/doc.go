// Package attempts counts failed authentication attempts and locks
// identifiers that cross a threshold.
//
// Each identifier moves through Clean, Accumulating and Locked. A lock
// expires lazily: the first read after its unblock time deletes the record.
// Persistence goes through [Store]; [MemoryStore] serves a single process and
// [RedisStore] shares state between instances. Both apply a failure as one
// atomic step, so concurrent failures cannot both slip under the threshold.
package attempts
