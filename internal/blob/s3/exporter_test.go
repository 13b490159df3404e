package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/store/memory"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.Put(ctx, path, data, "multipart")
}

func TestExportPredictions(t *testing.T) {
	ctx := context.Background()
	st := memory.New(time.UTC)
	indID, err := st.Industries().Insert(ctx, domain.Industry{Name: "Energy"})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := st.Predictions().Insert(ctx, domain.Prediction{
			IndustryID: indID,
			Date:       base.AddDate(0, 0, i),
			Predicted:  domain.DirectionUp,
		})
		require.NoError(t, err)
	}

	w := newMemWriter()
	exp := NewExporter(w, st.Predictions(), st.Industries(), st.Audit())
	exp.newID = func() string { return "fixed" }

	at := base.AddDate(0, 0, 2)
	path, count, err := exp.ExportPredictions(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "exports/predictions/2026-03-03/090000-fixed.jsonl", path)
	assert.Equal(t, contentTypeJSONL, w.types[path])

	var lines []domain.Prediction
	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	for sc.Scan() {
		var p domain.Prediction
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		lines = append(lines, p)
	}
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Date.Before(lines[1].Date))

	entries, err := st.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "export.predictions", entries[0].Event)
}

func TestExportIndustriesEmpty(t *testing.T) {
	ctx := context.Background()
	st := memory.New(time.UTC)
	w := newMemWriter()
	exp := NewExporter(w, st.Predictions(), st.Industries(), nil)

	path, count, err := exp.ExportIndustries(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Contains(t, w.objects, path)
	assert.Empty(t, w.objects[path])
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/predictd/")}
	assert.Equal(t, "predictd/exports/a.jsonl", c.key("/exports/a.jsonl"))
	assert.Equal(t, "", normalisePrefix("//"))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
