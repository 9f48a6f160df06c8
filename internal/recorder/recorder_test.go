package recorder

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portmark/internal/protocol"
	"github.com/mattjoyce/portmark/internal/storage"
)

func sample(cycle int, printing bool) Sample {
	return Sample{
		Cycle: cycle,
		Telemetry: protocol.Telemetry{
			TCPPose:        [6]float64{0.1, 0.2, 0.3, 0, 3.14, 0},
			JointAngles:    [6]float64{1, 2, 3, 4, 5, 6},
			TCPSpeed:       [6]float64{0.01, 0, 0, 0, 0, 0},
			TargetTCPSpeed: [6]float64{0.02, 0, 0, 0, 0, 0},
		},
		Printing: printing,
	}
}

func TestHeader(t *testing.T) {
	assert.Equal(t,
		"x,y,z,rx,ry,rz,q1,q2,q3,q4,q5,q6,vx,vy,vz,wx,wy,wz,vx_t,vy_t,vz_t,wx_t,wy_t,wz_t,print",
		strings.Join(Header, ","))
	assert.Len(t, sample(0, false).Values(), len(Header)-1)
}

func TestCSVRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "data.csv")
	r, err := NewCSV(path)
	require.NoError(t, err)
	assert.Equal(t, path, r.Path())

	require.NoError(t, r.Record(sample(3, true)))
	require.NoError(t, r.Record(sample(6, false)))
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "0.1", rows[1][0])
	assert.Equal(t, "6", rows[1][11])
	assert.Equal(t, "0.02", rows[1][18])
	assert.Equal(t, "true", rows[1][24])
	assert.Equal(t, "false", rows[2][24])
}

type brokenDisk struct{}

func (brokenDisk) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestCSVFlushKeepsOnlyUnwrittenSamples(t *testing.T) {
	r := &CSV{w: csv.NewWriter(brokenDisk{}), bufferSize: defaultBufferSize}
	const total = 200
	for i := 0; i < total; i++ {
		r.pending = append(r.pending, sample(i, i%2 == 0))
	}

	err := r.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.NotEmpty(t, r.pending)
	require.Less(t, len(r.pending), total)
	assert.Equal(t, total-len(r.pending), r.pending[0].Cycle, "accepted rows are not retried")
}

func TestCSVRecorderNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	_, err := NewCSV(path)
	assert.Error(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))
}

func TestDefaultCSVNameIsUnique(t *testing.T) {
	dir := t.TempDir()
	a, b := DefaultCSVName(dir), DefaultCSVName(dir)
	assert.NotEqual(t, a, b)
	assert.Equal(t, dir, filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".csv"))
}

func TestSQLiteRecorder(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "portmark.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewSQLite(db, "run-1")
	require.NoError(t, r.Record(sample(3, true)))
	require.NoError(t, r.Record(sample(6, false)))
	require.NoError(t, r.Close())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM telemetry_samples WHERE run_id = 'run-1'`).Scan(&n))
	assert.Equal(t, 2, n)

	var q6, vxT float64
	var printed bool
	require.NoError(t, db.QueryRow(`SELECT q6, vx_t, print FROM telemetry_samples WHERE cycle = 3`).Scan(&q6, &vxT, &printed))
	assert.Equal(t, 6.0, q6)
	assert.Equal(t, 0.02, vxT)
	assert.True(t, printed)
}
