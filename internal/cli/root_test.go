package cli_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/campusjobs/internal/cli"
	"github.com/dmitrymomot/campusjobs/pkg/config"
	"github.com/dmitrymomot/campusjobs/pkg/queue"
)

const manifestDir = "../../workers.d"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := cli.NewRootCommand()
	require.NotNil(t, cmd)

	for _, name := range []string{"env-file", "backend", "workers-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "--%s should be registered", name)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "enqueue", "queues", "dlq", "workers"})
}

func TestWorkersCommand(t *testing.T) {
	out, err := run(t, "workers", "--workers-dir", manifestDir)
	require.NoError(t, err)
	for _, q := range queue.DefaultQueues {
		assert.Contains(t, out, q)
	}

	out, err = run(t, "workers", "--workers-dir", manifestDir, "-o", "json")
	require.NoError(t, err)
	var views []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	assert.Len(t, views, len(queue.DefaultQueues))

	_, err = run(t, "workers", "--workers-dir", t.TempDir())
	assert.ErrorIs(t, err, cli.ErrNoWorkers)
}

func TestEnqueueCommand_Memory(t *testing.T) {
	out, err := run(t, "--backend", "memory", "enqueue", "student-queue", `{"studentId":"S1","action":"enrolled"}`)
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimSpace(out))
	assert.NoError(t, err, "enqueue should print the job id")

	_, err = run(t, "--backend", "memory", "enqueue", "library-queue", `{}`)
	assert.ErrorIs(t, err, queue.ErrQueueNotRegistered)

	_, err = run(t, "--backend", "memory", "enqueue", "student-queue", `{studentId}`)
	assert.ErrorIs(t, err, cli.ErrInvalidPayload)

	_, err = run(t, "--backend", "memory", "enqueue", "student-queue", `{}`, "--priority", "101")
	assert.ErrorIs(t, err, queue.ErrInvalidPriority)

	_, err = run(t, "--backend", "memory", "enqueue", "student-queue", `{}`, "--max-attempts", "30")
	assert.ErrorIs(t, err, queue.ErrInvalidMaxAttempts)

	_, err = run(t, "--backend", "memory", "enqueue", "student-queue", `{}`, "--max-attempts", "0")
	assert.ErrorIs(t, err, queue.ErrInvalidMaxAttempts)

	out, err = run(t, "--backend", "memory", "enqueue", "student-queue", `{}`, "--max-attempts", "5")
	require.NoError(t, err)
	_, err = uuid.Parse(strings.TrimSpace(out))
	assert.NoError(t, err)
}

func TestQueuesCommand_UnknownBackend(t *testing.T) {
	_, err := run(t, "--backend", "kafka", "queues")
	assert.ErrorIs(t, err, cli.ErrUnknownBackend)
}

func TestDLQCommand_Memory(t *testing.T) {
	out, err := run(t, "--backend", "memory", "dlq", "list", "exam-queue")
	require.NoError(t, err)
	assert.Contains(t, out, "no dead letters in exam-queue.dead")

	out, err = run(t, "--backend", "memory", "dlq", "list", "exam-queue", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = run(t, "--backend", "memory", "dlq", "list", "exam-queue", "--archive")
	assert.Error(t, err)

	_, err = run(t, "--backend", "memory", "dlq", "list", "library-queue")
	assert.ErrorIs(t, err, queue.ErrQueueNotRegistered)
}

func TestRedisBackend(t *testing.T) {
	srv := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+srv.Addr()+"/0")
	t.Setenv("REDIS_KEY_PREFIX", "clitest")
	config.ResetCache()
	t.Cleanup(config.ResetCache)

	_, err := run(t, "--backend", "redis", "enqueue", "course-queue", `{"courseId":"C1","action":"created"}`, "--delay", "1h")
	require.NoError(t, err)
	_, err = run(t, "--backend", "redis", "enqueue", "course-queue", `{"courseId":"C2","action":"created"}`)
	require.NoError(t, err)

	out, err := run(t, "--backend", "redis", "queues", "-o", "json")
	require.NoError(t, err)

	var stats []queue.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, len(queue.DefaultQueues))
	for _, s := range stats {
		if s.Queue == "course-queue" {
			assert.Equal(t, int64(1), s.Pending)
			assert.Equal(t, int64(1), s.Scheduled)
		} else {
			assert.Zero(t, s.Pending+s.Scheduled, s.Queue)
		}
	}

	out, err = run(t, "--backend", "redis", "queues")
	require.NoError(t, err)
	assert.Contains(t, out, "course-queue")
}
