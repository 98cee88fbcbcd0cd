package console

import (
	"context"
	"fmt"
	"os"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/pkg/logger"
)

// AttachImage encodes a local file into the form's image field. Oversized or
// unreadable files are rejected before any conversion starts and the field
// keeps its value. Otherwise the conversion runs in the background; Submit
// is refused until it finishes. The returned channel yields the outcome once.
func (c *Console) AttachImage(ctx context.Context, field, path string) (<-chan error, error) {
	c.mu.Lock()
	f := c.form
	if f == nil {
		c.mu.Unlock()
		return nil, ErrNoForm
	}
	fd, ok := c.kind.Field(field)
	if !ok || fd.Type != content.FieldImage {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is not an image field", ErrUnknownField, field)
	}
	if f.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitting
	}
	c.mu.Unlock()

	fi, err := os.Stat(path)
	if err != nil {
		c.notify.Alert("Cannot read file: " + err.Error())
		return nil, err
	}
	if err := c.enc.Check(fi.Size()); err != nil {
		c.notify.Alert(fmt.Sprintf("File is too large. Please choose an image under %d KB.", c.enc.MaxBytes()/1000))
		return nil, err
	}

	c.mu.Lock()
	if c.form != f {
		c.mu.Unlock()
		return nil, ErrNoForm
	}
	f.uploads++
	c.mu.Unlock()
	c.changed()

	out := make(chan error, 1)
	go func() {
		res, err := c.enc.EncodeFile(ctx, path)
		c.mu.Lock()
		f.uploads--
		current := c.form == f
		if err == nil && current {
			f.fields[field] = res.DataURI
		}
		c.mu.Unlock()
		if err != nil {
			logger.Warnf("console: encode %s failed: %v", path, err)
			c.notify.Alert("Image conversion failed: " + err.Error())
		}
		c.changed()
		out <- err
	}()
	return out, nil
}
