package wire

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-station/internal/types"
	"github.com/rxtech-lab/argo-station/pkg/errors"
)

type CodecTestSuite struct {
	suite.Suite
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}

func (suite *CodecTestSuite) TestDecodeEntityUpdate() {
	raw := []byte(`{"v":1,"type":"entity","id":"BTC-PERP","kind":"instrument","price":"42300.123456789","status":"active","fields":{"venue":"ftx"},"ts":1704067200000}`)

	event, err := Decode(raw)
	suite.NoError(err)

	update, ok := event.(types.EntityUpdateEvent)
	suite.True(ok)
	suite.Equal("BTC-PERP", update.Entity.ID)
	suite.Equal(types.EntityKindInstrument, update.Entity.Kind)
	suite.Equal(types.EntityStatusActive, update.Entity.Status)
	suite.Equal("ftx", update.Entity.Fields["venue"])
	suite.Equal(time.UnixMilli(1704067200000), update.Entity.UpdatedAt)

	// Full precision must survive decoding.
	suite.True(update.Entity.Price.Equal(decimal.RequireFromString("42300.123456789")))
}

func (suite *CodecTestSuite) TestDecodeEntityDefaults() {
	raw := []byte(`{"v":1,"type":"entity","id":"ETH-PERP"}`)

	event, err := Decode(raw)
	suite.NoError(err)

	update, ok := event.(types.EntityUpdateEvent)
	suite.True(ok)
	suite.Equal(types.EntityKindInstrument, update.Entity.Kind)
	suite.Equal(types.EntityStatusUnknown, update.Entity.Status)
	suite.True(update.Entity.Price.IsZero())
}

func (suite *CodecTestSuite) TestDecodeRemove() {
	raw := []byte(`{"v":1,"type":"remove","id":"BTC-PERP"}`)

	event, err := Decode(raw)
	suite.NoError(err)

	remove, ok := event.(types.EntityRemoveEvent)
	suite.True(ok)
	suite.Equal("BTC-PERP", remove.EntityID)
}

func (suite *CodecTestSuite) TestDecodeHeartbeat() {
	raw := []byte(`{"v":1,"type":"heartbeat","ts":1704067200123}`)

	event, err := Decode(raw)
	suite.NoError(err)

	hb, ok := event.(types.HeartbeatEvent)
	suite.True(ok)
	suite.Equal(time.UnixMilli(1704067200123), hb.SentAt)
}

func (suite *CodecTestSuite) TestDecodeNotice() {
	raw := []byte(`{"v":1,"type":"notice","level":"warning","message":"maintenance window","ts":1704067200000}`)

	event, err := Decode(raw)
	suite.NoError(err)

	notice, ok := event.(types.NoticeEvent)
	suite.True(ok)
	suite.Equal(types.NoticeLevelWarning, notice.Level)
	suite.Equal("maintenance window", notice.Message)
}

func (suite *CodecTestSuite) TestDecodeNoticeUnknownLevelDefaultsToInfo() {
	raw := []byte(`{"v":1,"type":"notice","level":"critical","message":"something"}`)

	event, err := Decode(raw)
	suite.NoError(err)

	notice, ok := event.(types.NoticeEvent)
	suite.True(ok)
	suite.Equal(types.NoticeLevelInfo, notice.Level)
}

func (suite *CodecTestSuite) TestDecodeMalformedJSON() {
	_, err := Decode([]byte(`{"v":1,"type":"entity","id":`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeFrameMalformed))
	suite.False(IsFatal(err))
}

func (suite *CodecTestSuite) TestDecodeMissingVersion() {
	_, err := Decode([]byte(`{"type":"heartbeat","ts":1}`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeFrameMalformed))
	suite.False(IsFatal(err))
}

func (suite *CodecTestSuite) TestDecodeMissingRequiredFields() {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "entity without id", raw: `{"v":1,"type":"entity"}`},
		{name: "remove without id", raw: `{"v":1,"type":"remove"}`},
		{name: "heartbeat without ts", raw: `{"v":1,"type":"heartbeat"}`},
		{name: "notice without message", raw: `{"v":1,"type":"notice","level":"info"}`},
		{name: "entity with bad price", raw: `{"v":1,"type":"entity","id":"X","price":"not-a-number"}`},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := Decode([]byte(tt.raw))
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeFrameMalformed))
		})
	}
}

func (suite *CodecTestSuite) TestDecodeUnknownShape() {
	_, err := Decode([]byte(`{"v":1,"type":"orderbook","id":"BTC-PERP"}`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownShape))
	suite.False(IsFatal(err))
}

func (suite *CodecTestSuite) TestDecodeSchemaMismatchIsFatal() {
	_, err := Decode([]byte(`{"v":2,"type":"heartbeat","ts":1}`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSchemaMismatch))
	suite.True(IsFatal(err))
}

func (suite *CodecTestSuite) TestCommandRoundTrip() {
	commands := []types.OutboundCommand{
		types.SubscribeCommand{EntityIDs: []string{"BTC-PERP", "ETH-PERP"}},
		types.UnsubscribeCommand{EntityIDs: []string{"SOL-PERP"}},
		types.PingCommand{Nonce: "abc-123"},
	}

	for _, cmd := range commands {
		raw, err := Encode(cmd)
		suite.NoError(err)

		decoded, err := DecodeCommand(raw)
		suite.NoError(err)
		suite.Equal(cmd, decoded)
	}
}

func (suite *CodecTestSuite) TestEncodeUnsupportedCommand() {
	_, err := Encode(nil)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeEncodeFailed))
}

func (suite *CodecTestSuite) TestDecodeCommandUnknownType() {
	_, err := DecodeCommand([]byte(`{"v":1,"type":"entity","id":"X"}`))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownShape))
}
