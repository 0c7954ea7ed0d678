package etcd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseSeconds(t *testing.T) {
	assert.Equal(t, int64(1), leaseSeconds(0))
	assert.Equal(t, int64(1), leaseSeconds(200*time.Millisecond))
	assert.Equal(t, int64(30), leaseSeconds(30*time.Second))
	assert.Equal(t, int64(31), leaseSeconds(30*time.Second+time.Millisecond))
}

func TestEtcdKey(t *testing.T) {
	l := NewLockerFromClient(nil, "/kb/locks/")
	assert.Equal(t, "/kb/locks/memory:mem_1", l.etcdKey("memory:mem_1"))

	l = NewLockerFromClient(nil, "")
	assert.Equal(t, "/kb-auditor/locks/memory:mem_1", l.etcdKey("memory:mem_1"))
}

func TestNewLocker_NoEndpoints(t *testing.T) {
	_, err := NewLocker(Config{})
	assert.Error(t, err)
}
