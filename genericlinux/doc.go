// Package genericlinux implements the buskit bus contracts on top of the
// standard Linux kernel interfaces: GPIO character devices (/dev/gpiochipN)
// by way of mkch's gpio package, and the i2c-dev and spidev device files by
// way of periph.io. It does not target a particular board; anything exposing
// those device nodes works.
package genericlinux
