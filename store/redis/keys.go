package redis

// Redis key naming conventions for chalk data.
// All keys are prefixed with "chalk:" to avoid collisions.

const keyPrefix = "chalk:"

// ── Event log keys ──

// eventMember builds the composite member used in event index sets:
// {id}:{timestamp}. The hash key is derived from it.
func eventMember(eventID, timestamp string) string {
	return eventID + ":" + timestamp
}

// eventKey returns the key for an event record: chalk:event:{id}:{timestamp}
func eventKey(member string) string { return keyPrefix + "event:" + member }

// eventIndexKey returns the Sorted Set key for one index bucket:
// chalk:event_ix:{index}:{key}. Members are event members scored by
// timestamp.
func eventIndexKey(index, key string) string {
	return keyPrefix + "event_ix:" + index + ":" + key
}

// eventExpiryKey is the Sorted Set tracking records with a TTL, scored
// by expire_at epoch seconds.
const eventExpiryKey = keyPrefix + "event_expiry"

// ── Queue keys ──

// msgKey returns the key for a message entity: chalk:msg:{queue}:{id}
func msgKey(queueName, msgID string) string {
	return keyPrefix + "msg:" + queueName + ":" + msgID
}

// queueKey returns the Sorted Set key for a queue: chalk:queue:{name}.
// Members are message IDs scored by visibility deadline in epoch
// milliseconds; zero means never received.
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// ── DLQ keys ──

// dlqKey returns the key for a dead-letter entry: chalk:dlq:{id}
func dlqKey(id string) string { return keyPrefix + "dlq:" + id }

// dlqFailedKey is the Sorted Set ordering entries by FailedAt for
// newest-first listing.
const dlqFailedKey = keyPrefix + "dlq_by_failed"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entry: chalk:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleLockKey returns the lock key for a schedule entry, held via
// SET NX with a TTL: chalk:schedule_lock:{id}
func scheduleLockKey(id string) string { return keyPrefix + "schedule_lock:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps schedule names to IDs for duplicate detection.
const scheduleNamesKey = keyPrefix + "schedule_names"
