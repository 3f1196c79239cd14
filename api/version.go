package api

// Version 构建时通过 -ldflags "-X tradeidea/api.Version=..." 注入
var Version = "dev"
