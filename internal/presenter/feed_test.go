package presenter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Feed_VersionAndDrain(t *testing.T) {
	// given
	f := NewFeed(0, discard)
	ctx := context.Background()

	// when
	f.CartChanged(ctx)
	f.CartChanged(ctx)
	f.Notice(ctx, "SSD NVMe 1TB agregado al carrito.")
	f.Notice(ctx, "Carrito vaciado.")

	// then
	assert.Equal(t, uint64(2), f.Version())
	notices := f.Drain()
	assert.Len(t, notices, 2)
	assert.Equal(t, "SSD NVMe 1TB agregado al carrito.", notices[0].Message)
	assert.Equal(t, "Carrito vaciado.", notices[1].Message)
	assert.Equal(t, []Notice{}, f.Drain())
}

func Test_Feed_DropsOldest(t *testing.T) {
	f := NewFeed(3, discard)
	for i := range 5 {
		f.Notice(context.Background(), fmt.Sprintf("n%d", i))
	}

	notices := f.Drain()

	assert.Len(t, notices, 3)
	assert.Equal(t, "n2", notices[0].Message)
	assert.Equal(t, "n4", notices[2].Message)
}
