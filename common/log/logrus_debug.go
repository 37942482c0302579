//go:build debug

package log

func init() {
	EnableCaller()
}
