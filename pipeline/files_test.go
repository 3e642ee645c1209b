package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanAndMove(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	assert.NoError(t, os.WriteFile(filepath.Join(source, "alipay_record_20231208_101010.csv"), []byte("data"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(source, "notes.txt"), []byte("keep"), 0o644))

	contents, err := ScanAndMove(source, dest, func(name string) bool {
		return strings.HasPrefix(name, "alipay_record_")
	}, "")
	assert.NoError(t, err)
	assert.Len(t, contents, 1)
	assert.Equal(t, []byte("data"), contents["alipay_record_20231208_101010.csv"])

	// Matched file moved to dest, unmatched file untouched.
	_, err = os.Stat(filepath.Join(source, "alipay_record_20231208_101010.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, "alipay_record_20231208_101010.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(source, "notes.txt"))
	assert.NoError(t, err)
}

func TestScanAndMove_Postfix(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	assert.NoError(t, os.WriteFile(filepath.Join(source, "unconfirmed.csv"), []byte("rows"), 0o644))

	_, err := ScanAndMove(source, dest, func(name string) bool {
		return name == "unconfirmed.csv"
	}, "-1700000000")
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "unconfirmed-1700000000.csv"))
	assert.NoError(t, err)
}
