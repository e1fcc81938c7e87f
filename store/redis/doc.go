// Package redis implements the chalk store contracts on Redis.
//
// Events, messages, dead-letter entries, and schedules are stored as
// Hashes. Sorted Sets order the event indexes by timestamp, queues by
// visibility deadline, and the dead-letter queue by failure time.
// Schedule locks use SET NX with a TTL.
//
// # Usage
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	eng, err := engine.New(s, chalk.DefaultConfig())
package redis
