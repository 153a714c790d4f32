// Package ota applies over-the-air firmware updates that arrive as raw
// application images, typically dropped onto the device's virtual USB disk.
//
// An update is recognized by the image magic in the first written sector,
// validated against the device's chip id and the embedded application
// descriptor, then streamed into the next free OTA partition slot. Because
// USB mass-storage hosts do not announce the end of a file transfer, the
// pipeline treats one second of write inactivity as end-of-transfer, at
// which point the target slot becomes the boot partition.
package ota
