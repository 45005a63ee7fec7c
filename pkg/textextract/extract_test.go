package textextract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	data := []byte("  hello world\n")

	for _, fileType := range []string{".txt", "text/plain", ".md", "text/markdown"} {
		t.Run(fileType, func(t *testing.T) {
			result, err := Extract(bytes.NewReader(data), int64(len(data)), fileType)
			require.NoError(t, err)
			assert.Equal(t, "hello world", result.Content)
			assert.Equal(t, 1, result.Pages)
		})
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	data := []byte{0x00, 0x01}
	_, err := Extract(bytes.NewReader(data), 2, ".exe")
	assert.Error(t, err)
}

func TestSupportedTypes(t *testing.T) {
	types := SupportedTypes()
	assert.Contains(t, types, ".pdf")
	assert.Contains(t, types, ".docx")
	assert.Contains(t, types, ".txt")
	assert.Contains(t, types, ".md")
}

func TestStripXMLTags(t *testing.T) {
	in := `<w:p><w:r><w:t>first</w:t></w:r></w:p><w:p><w:r><w:t>second</w:t></w:r></w:p>`
	assert.Equal(t, "first second", stripXMLTags(in))
}
