package constants

import "time"

const AppName = "lanhub"

// Default listener ports and storage
const (
	DefaultDiscoveryPort = 9089
	DefaultChatPort      = 9090
	DefaultAudioPort     = 9091
	DefaultVideoPort     = 9092
	DefaultScreenPort    = 9093
	DefaultFilePort      = 9094
	DefaultDashboardPort = 8080
	DefaultFileDir       = "server_files"
	MinPort              = 1
	MaxPort              = 65535
)

// Wire literals
const (
	DiscoveryRequest = "SERVER_DISCOVERY_REQUEST"
	DiscoveryReply   = "IAM_THE_SERVER:"
	RolePresenter    = "PRESENTER"
	RoleViewer       = "VIEWER"
)

// Buffer sizes and limits
const (
	UDPBufferSize = 65536            // max UDP datagram
	ChatLineLimit = 64 * 1024        // chat commands are small control lines
	MaxFrameSize  = 20 * 1024 * 1024 // screen frames above this are protocol violations
	FileChunkSize = 4096
	RoleTokenSize = 16
)

// Timeouts
const (
	FileIdleTimeout     = 5 * time.Minute
	DownloadConfirmWait = 30 * time.Second
	ViewerProbeInterval = 60 * time.Second
	ShutdownTimeout     = 5 * time.Second
)

// Time formats
const (
	TimeFormatShort = "15:04:05"
)

// ANSI color codes
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorCyan  = "\033[36m"
)
