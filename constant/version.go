package constant

// Version is set at build time via -ldflags "-X github.com/pmkol/tlesync/constant.Version=...".
var Version = "dev"
