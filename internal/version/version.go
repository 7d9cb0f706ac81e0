package version

// Version is reported by `shary --version`. Release builds set it with
//
//	go build -ldflags="-X 'github.com/serozhenka/shary/internal/version.Version=v0.3.0'"
var Version = "dev"
