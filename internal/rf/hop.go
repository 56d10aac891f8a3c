package rf

// NumChannels is the size of the hop whitelist (spec §3: "a 16-entry
// whitelist of channels chosen to avoid common Wi-Fi bands").
const NumChannels = 16

// ChannelWhitelist lists the 16 physical channel indices eligible for
// hopping. Values are illustrative 2.4 GHz channel numbers spaced to sit
// between common Wi-Fi 20 MHz channel centers (1/6/11); exact RF planning
// is outside the core's scope (spec §1 Non-goals).
var ChannelWhitelist = [NumChannels]byte{
	2, 5, 8, 14, 17, 20, 23, 29,
	32, 35, 41, 44, 47, 53, 56, 59,
}

// HopChannel computes ch = H(frame_number, network_key): a fixed
// avalanche-style 32-bit mix (xor-shift + two odd multiplications),
// modulo into ChannelWhitelist. Both peers recompute this locally; it is
// part of the wire-compatibility surface and must be reproduced
// bit-exactly (spec §9).
func HopChannel(frameNumber uint16, networkKey uint32) byte {
	return ChannelWhitelist[hopMix(frameNumber, networkKey)%NumChannels]
}

// hopMix performs the avalanche mix. This is a Murmur3-style finalizer
// (odd multiplications by 0x85EBCA6B and 0xC2B2AE35) seeded with the
// frame number and network key, named explicitly in spec §9.
func hopMix(frameNumber uint16, networkKey uint32) uint32 {
	x := networkKey ^ uint32(frameNumber)
	x ^= x >> 16
	x *= 0x85EBCA6B
	x ^= x >> 13
	x *= 0xC2B2AE35
	x ^= x >> 16
	return x
}
