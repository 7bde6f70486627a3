package logger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midirec/sdk/contracts"
)

func TestSetDestinationWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midirec.log")
	log := NewZapLogger()
	log.SetDestination(contracts.FileLog, path)

	log.Info("redirected entry", log.Field().Int("deviceID", 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "redirected entry")
	assert.Contains(t, string(data), "deviceID")
}

func TestSetDestinationWithoutPathKeepsLogging(t *testing.T) {
	log := NewZapLogger()
	log.SetDestination(contracts.FileLog)
	log.Info("still alive")
}

func TestSetDestinationConcurrentWithLogging(t *testing.T) {
	dir := t.TempDir()
	log := NewZapLogger()
	log.SetDestination(contracts.FileLog, filepath.Join(dir, "a.log"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				log.Info("entry", log.Field().Int("n", j))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			log.SetDestination(contracts.FileLog, filepath.Join(dir, "b.log"))
		}
	}()
	wg.Wait()

	log.Info("after swap")
	data, err := os.ReadFile(filepath.Join(dir, "b.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "after swap")
}
