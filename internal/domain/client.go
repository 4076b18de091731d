package domain

import (
	"context"
	"time"
)

// BlockKind selects how a ChatBlock is rendered.
type BlockKind string

const (
	BlockHeader  BlockKind = "header"
	BlockText    BlockKind = "text"
	BlockImage   BlockKind = "image"
	BlockDivider BlockKind = "divider"
	// BlockOption is a text row with a small image beside it.
	BlockOption BlockKind = "option"
)

// ChatBlock is one platform-neutral message block.
type ChatBlock struct {
	Kind     BlockKind
	Text     string
	ImageURL string
	AltText  string
}

// ChatMessage is a message for the review channel. Text is the plain
// fallback shown by notifications.
type ChatMessage struct {
	Text   string
	Blocks []ChatBlock
}

// Reaction names used for review decisions.
const (
	ReactionApprove = "white_check_mark"
	ReactionReject  = "x"
)

// ChatClient posts review messages and reads reactions on them.
type ChatClient interface {
	Post(ctx context.Context, msg ChatMessage) (messageID string, err error)
	// Reactions maps reaction name to the ids of the users who added it,
	// excluding the bot itself.
	Reactions(ctx context.Context, messageID string) (map[string][]string, error)
	React(ctx context.Context, messageID, name string) error
	Delete(ctx context.Context, messageID string) error
}

// ImageGenerator produces a PNG image from a text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Asset is a published, publicly reachable file.
type Asset struct {
	URL      string
	Revision string
}

// AssetRepository publishes files under a public URL.
type AssetRepository interface {
	Publish(ctx context.Context, path string, data []byte) (Asset, error)
}

// ChainMarket is the payload of an on-chain market creation.
type ChainMarket struct {
	Question  string
	Options   []string
	Expiry    time.Time
	Category  string
	BannerURL string
}

// ChainReceipt describes a mined market creation.
type ChainReceipt struct {
	TxHash      string
	BlockNumber uint64
	MarketID    string
}

// ChainClient submits markets to the prediction-market contract.
type ChainClient interface {
	Submit(ctx context.Context, m ChainMarket) (ChainReceipt, error)
}
