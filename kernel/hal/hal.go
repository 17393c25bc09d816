package hal

import (
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/tty"
	"github.com/Ewogijk/runeOS-sub002/kernel/driver/video/console"
	"github.com/Ewogijk/runeOS-sub002/kernel/hal/limine"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some output
// till everything is properly setup
func InitTerminal() {
	fbInfo := limine.GetFramebufferInfo()

	egaConsole.Init(uint16(fbInfo.Width), uint16(fbInfo.Height), uintptr(fbInfo.PhysAddr))
	ActiveTerminal.AttachTo(egaConsole)
}
