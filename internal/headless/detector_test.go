package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsJSBelowSizeThreshold(t *testing.T) {
	d := NewDetector(100, nil, nil)
	assert.True(t, d.NeedsJS([]byte("<html></html>")))
	assert.False(t, d.NeedsJS(make([]byte, 200)))
}

func TestNeedsJSKeyword(t *testing.T) {
	d := NewDetector(0, nil, []string{"enable javascript"})
	assert.True(t, d.NeedsJS([]byte("<html><body>Please Enable JavaScript to continue</body></html>")))
	assert.False(t, d.NeedsJS([]byte("<html><body>real content</body></html>")))
}

func TestNeedsJSMissingSelector(t *testing.T) {
	d := NewDetector(0, []string{"article"}, nil)
	assert.True(t, d.NeedsJS([]byte("<html><body><div id=\"root\"></div></body></html>")))
	assert.False(t, d.NeedsJS([]byte("<html><body><article>story</article></body></html>")))
}

func TestNilDetectorNeverPromotes(t *testing.T) {
	var d *Detector
	assert.False(t, d.NeedsJS([]byte("x")))
}
