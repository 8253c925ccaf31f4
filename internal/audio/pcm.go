package audio

import (
	"math"
)

// PCM16ToInts 将 signed 16-bit 小端 PCM 字节转换为样本值，丢弃不完整的尾部字节。
// 结果可直接用作 go-audio IntBuffer 的数据。
func PCM16ToInts(b []byte) []int {
	n := len(b) / 2
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8))
	}
	return out
}

// Float32ToInts 将 [-1.0, 1.0] 范围的 float32 样本转换为 16-bit 样本值。
func Float32ToInts(in []float32) []int {
	out := make([]int, len(in))
	for i, s := range in {
		// 钳位到 [-1.0, 1.0]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int(s * math.MaxInt16)
	}
	return out
}

// DownmixStereo 将交错的立体声样本左右取平均合并为单声道。
func DownmixStereo(in []int) []int {
	n := len(in) / 2
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = (in[2*i] + in[2*i+1]) / 2
	}
	return out
}
