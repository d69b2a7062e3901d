// Package sim implements the buskit bus contracts entirely in software, so
// drivers and demos run byte-for-byte the same transactions with no hardware
// attached. The addressable bus models one virtual temperature sensor; the
// digital bank is a loopback that records what was driven.
package sim
