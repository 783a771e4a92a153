package lbank

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSymbolsBareArray(t *testing.T) {
	syms := extractSymbols([]byte(`["btc_usdt", "ETH_USDT", " doge_usdt "]`))
	assert.Len(t, syms, 3)
	_, ok := syms["btc_usdt"]
	assert.True(t, ok)
	_, ok = syms["eth_usdt"]
	assert.True(t, ok)
	_, ok = syms["doge_usdt"]
	assert.True(t, ok)
}

func TestExtractSymbolsWrappedObjects(t *testing.T) {
	syms := extractSymbols([]byte(`{"data":[{"symbol":"btc_usdt"},{"pair":"eth_usdt"}]}`))
	assert.Len(t, syms, 2)
	_, ok := syms["btc_usdt"]
	assert.True(t, ok)
	_, ok = syms["eth_usdt"]
	assert.True(t, ok)
}

func TestExtractSymbolsCommaString(t *testing.T) {
	syms := extractSymbols([]byte(`"btc_usdt,eth_usdt"`))
	assert.Len(t, syms, 2)
}

func TestExtractSymbolsGarbage(t *testing.T) {
	assert.Empty(t, extractSymbols([]byte(`{"unexpected": true}`)))
	assert.Empty(t, extractSymbols([]byte(`not json`)))
}

func TestVenueSymbol(t *testing.T) {
	assert.Equal(t, "btc_usdt", venueSymbol("BTC/USDT"))
}

func TestDepthFrameParsing(t *testing.T) {
	raw := []byte(`{
		"type": "depth",
		"pair": "btc_usdt",
		"depth": {
			"bids": [[42000.5, 0.3]],
			"asks": [[42001.0, 0.1]]
		}
	}`)
	var frame wsFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "depth", frame.Type)
	assert.Equal(t, "btc_usdt", frame.Pair)
	require.Len(t, frame.Depth.Bids, 1)
	assert.Equal(t, "42000.5", frame.Depth.Bids[0][0].String())
}

func TestPingFrameDecodes(t *testing.T) {
	var frame wsFrame
	require.NoError(t, json.Unmarshal([]byte(`{"action":"ping","ping":"abc-123"}`), &frame))
	assert.Equal(t, "ping", frame.Action)
	assert.Equal(t, "abc-123", frame.Ping)
}
