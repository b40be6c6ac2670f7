package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLine refuses every other byte to simulate a full transmit register.
type flakyLine struct {
	buf  bytes.Buffer
	tick int
}

func (f *flakyLine) Write(p []byte) (int, error) {
	f.tick++
	if f.tick%2 == 1 {
		return 0, nil
	}
	return f.buf.Write(p)
}

type brokenLine struct{}

func (brokenLine) Write([]byte) (int, error) { return 0, errors.New("line down") }

func TestWriteString_UTF8Passthrough(t *testing.T) {
	var buf bytes.Buffer
	c, err := New(&buf, "")
	require.NoError(t, err)

	n, err := c.WriteString("Hello,RVOS!\n")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "Hello,RVOS!\n", buf.String())
	assert.EqualValues(t, 12, c.Written())
}

func TestWriteString_CodePage437(t *testing.T) {
	var buf bytes.Buffer
	c, err := New(&buf, CharsetCP437)
	require.NoError(t, err)

	_, err = c.WriteString("é")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82}, buf.Bytes(), "é is 0x82 in code page 437")
}

func TestWriteString_UnmappableReplaced(t *testing.T) {
	var buf bytes.Buffer
	c, err := New(&buf, CharsetLatin1)
	require.NoError(t, err)

	_, err = c.WriteString("任务")
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Len(), "each unmappable rune becomes one replacement byte")
}

func TestWriteString_WaitsOutBusy(t *testing.T) {
	line := &flakyLine{}
	c, err := New(line, CharsetUTF8)
	require.NoError(t, err)

	_, err = c.WriteString("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", line.buf.String())
}

func TestWriteByte_ReportsBusyAndErrors(t *testing.T) {
	c, err := New(&flakyLine{}, "")
	require.NoError(t, err)
	require.ErrorIs(t, c.WriteByte('x'), ErrBusy)

	c, err = New(brokenLine{}, "")
	require.NoError(t, err)
	err = c.WriteByte('x')
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestNew_UnknownCharset(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "ebcdic")
	require.ErrorIs(t, err, ErrCharset)
}

func TestReadByte(t *testing.T) {
	c := Discard()
	_, err := c.ReadByte()
	require.ErrorIs(t, err, ErrNoInput)

	c.WithInput(strings.NewReader("k"))
	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('k'), b)

	_, err = c.ReadByte()
	require.ErrorIs(t, err, ErrNoInput)
}
