package utils

import (
	"strconv"
	"sync/atomic"
	"time"
)

var idCounter atomic.Uint64

// GenerateID 生成基于时间戳的ID
func GenerateID() int64 {
	return time.Now().UnixNano()
}

// SubscriberID 生成订阅者ID，进程内唯一
func SubscriberID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(GenerateID(), 36) + "-" + strconv.FormatUint(idCounter.Add(1), 10)
}
