package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/luispater/ebmltree"
)

func formatSRTEntry(index int, packet *matroska.Packet) string {
	// Packet times are in nanoseconds; SRT timestamps are in milliseconds
	startMs := packet.StartTime / 1000000
	endMs := packet.EndTime / 1000000

	startTime := formatSRTTime(startMs)
	endTime := formatSRTTime(endMs)

	// Clean subtitle text - convert CRLF to LF to match reference
	text := strings.ReplaceAll(string(packet.Data), "\r\n", "\n")
	if text == "" {
		text = " " // Empty subtitle
	}

	return fmt.Sprintf("%d\n%s --> %s\n%s\n\n", index, startTime, endTime, text)
}

func formatSRTTime(ms uint64) string {
	hours := ms / 3600000
	ms %= 3600000
	minutes := ms / 60000
	ms %= 60000
	seconds := ms / 1000
	milliseconds := ms % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}

// Global variables
var firstAUDSeen = false
var videoCodecPrivateWritten = false
var videoCodecPrivate []byte

func convertAVCCToAnnexB(data []byte) []byte {
	var result []byte
	pos := 0
	nalCount := 0

	for pos < len(data)-4 {
		// Read NAL unit length (4 bytes, big endian)
		length := uint32(data[pos])<<24 | uint32(data[pos+1])<<16 | uint32(data[pos+2])<<8 | uint32(data[pos+3])
		pos += 4

		// Add NAL unit data with start code
		if pos+int(length) <= len(data) {
			nalData := data[pos : pos+int(length)]

			// Check NAL unit type to decide start code length
			use4ByteStartCode := false
			if len(nalData) > 0 {
				// Detect if this is H.264 or H.265 based on NAL unit structure
				firstByte := nalData[0]

				// H.265: NAL unit type is in bits 6-1 (>> 1 & 0x3F)
				// H.264: NAL unit type is in bits 4-0 (& 0x1F)

				// Check if this looks like H.265 (has layer_id and temporal_id fields)
				if len(nalData) >= 2 {
					// H.265 has a specific pattern - check common H.265 NAL types
					isH265 := (firstByte&0x81) == 0x40 || // VPS/SPS/PPS pattern
						(firstByte&0x81) == 0x42 ||
						(firstByte&0x81) == 0x44 ||
						(firstByte&0x81) == 0x46 ||
						(firstByte&0x81) == 0x4E // Common H.265 patterns

					if isH265 {
						// H.265 logic
						nalType := (firstByte >> 1) & 0x3F
						if nalType == 32 || nalType == 33 || nalType == 34 { // VPS, SPS, PPS
							use4ByteStartCode = true
						} else if nalType == 35 { // AUD
							if !firstAUDSeen {
								use4ByteStartCode = true
								firstAUDSeen = true
							}
						}
					} else {
						// H.264 logic - based on analysis, H.264 uses 4-byte start codes for all NAL units
						use4ByteStartCode = true
					}
				}
			}

			// Add appropriate start code
			if use4ByteStartCode {
				result = append(result, 0x00, 0x00, 0x00, 0x01)
			} else {
				result = append(result, 0x00, 0x00, 0x01)
			}

			result = append(result, nalData...)
			pos += int(length)
		} else {
			// Handle truncated data
			result = append(result, 0x00, 0x00, 0x01)
			result = append(result, data[pos:]...)
			break
		}

		nalCount++
	}

	return result
}

func convertAVCCConfigToAnnexB(config []byte) []byte {
	var result []byte

	if len(config) < 6 {
		return result
	}

	// Parse AVCC configuration record
	// Skip first 5 bytes (version, profile, compatibility, level, nal_length_size)
	pos := 5

	// Number of SPS
	if pos >= len(config) {
		return result
	}
	numSPS := config[pos] & 0x1F
	pos++

	// Extract SPS
	for i := 0; i < int(numSPS) && pos+1 < len(config); i++ {
		// SPS length (2 bytes, big endian)
		spsLength := uint16(config[pos])<<8 | uint16(config[pos+1])
		pos += 2

		if pos+int(spsLength) <= len(config) {
			// Add 4-byte start code + SPS data
			result = append(result, 0x00, 0x00, 0x00, 0x01)
			result = append(result, config[pos:pos+int(spsLength)]...)
			pos += int(spsLength)
		}
	}

	// Number of PPS
	if pos >= len(config) {
		return result
	}
	numPPS := config[pos]
	pos++

	// Extract PPS
	for i := 0; i < int(numPPS) && pos+1 < len(config); i++ {
		// PPS length (2 bytes, big endian)
		ppsLength := uint16(config[pos])<<8 | uint16(config[pos+1])
		pos += 2

		if pos+int(ppsLength) <= len(config) {
			// Add 4-byte start code + PPS data
			result = append(result, 0x00, 0x00, 0x00, 0x01)
			result = append(result, config[pos:pos+int(ppsLength)]...)
			pos += int(ppsLength)
		}
	}

	return result
}

func main() {
	// Reset global state for new file
	firstAUDSeen = false
	videoCodecPrivateWritten = false
	videoCodecPrivate = nil

	if len(os.Args) < 3 {
		fmt.Printf("usage: %s <input.mkv> <output-dir>\n", filepath.Base(os.Args[0]))
		os.Exit(1)
	}
	inputFile := os.Args[1]
	outputDir := os.Args[2]

	// Check if input file exists
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		fmt.Printf("Input file does not exist: %s\n", inputFile)
		return
	}

	// Open the input file
	file, err := os.Open(inputFile)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	// Create demuxer
	demuxer, err := matroska.NewDemuxer(file)
	if err != nil {
		fmt.Printf("Error creating demuxer: %v\n", err)
		return
	}
	defer demuxer.Close()

	// Get file info
	fileInfo, err := demuxer.GetFileInfo()
	if err != nil {
		fmt.Printf("Error getting file info: %v\n", err)
		return
	}

	fmt.Printf("File: %s\n", filepath.Base(inputFile))
	fmt.Printf("Duration: %d\n", fileInfo.Duration)
	fmt.Printf("Timecode Scale: %d\n", fileInfo.TimecodeScale)

	// Get number of tracks
	numTracks, err := demuxer.GetNumTracks()
	if err != nil {
		fmt.Printf("Error getting number of tracks: %v\n", err)
		return
	}

	fmt.Printf("Number of tracks: %d\n", numTracks)

	// Create mapping from track number to track index and output files
	trackNumberToIndex := make(map[uint8]uint)
	trackFiles := make([]*os.File, numTracks)
	defer func() {
		for _, f := range trackFiles {
			if f != nil {
				_ = f.Close()
			}
		}
	}()

	// Get track info and create output files
	for i := uint(0); i < numTracks; i++ {
		trackInfo, errGetTrackInfo := demuxer.GetTrackInfo(i)
		if errGetTrackInfo != nil {
			fmt.Printf("Error getting track %d info: %v\n", i, errGetTrackInfo)
			continue
		}

		fmt.Printf("Track %d: Type=%d, Codec=%s, Number=%d\n",
			i, trackInfo.Type, trackInfo.CodecID, trackInfo.Number)

		// Map track number to index
		trackNumberToIndex[trackInfo.Number] = i

		// Save video codec private data
		if trackInfo.Type == 1 && len(trackInfo.CodecPrivate) > 0 {
			videoCodecPrivate = trackInfo.CodecPrivate
		}

		// Create output file for this track
		outputPath := filepath.Join(outputDir, fmt.Sprintf("track_%d_myoutput", i))
		trackFile, errGetTrackInfo := os.Create(outputPath)
		if errGetTrackInfo != nil {
			fmt.Printf("Error creating output file for track %d: %v\n", i, errGetTrackInfo)
			continue
		}

		// Add BOM for subtitle files
		if trackInfo.Type == 17 {
			_, _ = trackFile.Write([]byte{0xEF, 0xBB, 0xBF}) // UTF-8 BOM
		}

		trackFiles[i] = trackFile
	}

	// Read and write packets
	packetCount := 0
	trackPacketCounts := make([]int, numTracks)
	subtitleCounters := make([]int, numTracks) // For SRT numbering

	for {
		packet, errReadPacket := demuxer.ReadPacket()
		if errReadPacket != nil {
			if errReadPacket == io.EOF {
				break
			}
			fmt.Printf("Error reading packet: %v\n", errReadPacket)
			break
		}

		packetCount++
		if packetCount%5000 == 0 {
			fmt.Printf("Processed %d packets\r", packetCount)
		}

		// Write packet data to corresponding track file
		if trackIndex, exists := trackNumberToIndex[packet.Track]; exists && trackFiles[trackIndex] != nil {
			// Check if this is a subtitle track
			trackInfo, _ := demuxer.GetTrackInfo(trackIndex)
			if trackInfo.Type == 17 { // Subtitle track
				// Convert to SRT format
				subtitleCounters[trackIndex]++
				srtEntry := formatSRTEntry(subtitleCounters[trackIndex], packet)
				_, err = trackFiles[trackIndex].WriteString(srtEntry)
				if err != nil {
					fmt.Printf("Error writing subtitle data for track %d: %v\n", packet.Track, err)
					continue
				}
			} else if trackInfo.Type == 1 { // Video track
				// Write codec private data (SPS/PPS) at the beginning
				if !videoCodecPrivateWritten && len(videoCodecPrivate) > 0 {
					codecPrivateAnnexB := convertAVCCConfigToAnnexB(videoCodecPrivate)
					_, err = trackFiles[trackIndex].Write(codecPrivateAnnexB)
					if err != nil {
						fmt.Printf("Error writing codec private data for track %d: %v\n", packet.Track, err)
						continue
					}
					videoCodecPrivateWritten = true
				}

				// Convert AVCC format to Annex B format
				annexBData := convertAVCCToAnnexB(packet.Data)
				_, err = trackFiles[trackIndex].Write(annexBData)
				if err != nil {
					fmt.Printf("Error writing video data for track %d: %v\n", packet.Track, err)
					continue
				}
			} else {
				// Write raw data for audio tracks
				_, err = trackFiles[trackIndex].Write(packet.Data)
				if err != nil {
					fmt.Printf("Error writing packet data for track %d: %v\n", packet.Track, err)
					continue
				}
			}
			trackPacketCounts[trackIndex]++
		}
	}

	fmt.Printf("\nProcessing complete!\n")
	fmt.Printf("Total packets processed: %d\n", packetCount)

	// Print packet counts per track
	for i := 0; i < len(trackPacketCounts); i++ {
		fmt.Printf("Track %d: %d packets\n", i, trackPacketCounts[i])
	}

	// Compare with reference files
	fmt.Printf("\nComparing with reference files:\n")
	for i := uint(0); i < numTracks; i++ {
		outputPath := filepath.Join(outputDir, fmt.Sprintf("track_%d_myoutput", i))
		refPath := filepath.Join(outputDir, fmt.Sprintf("track_%d_ref", i))

		// Get file sizes
		outputStat, errStat := os.Stat(outputPath)
		if errStat != nil {
			fmt.Printf("Track %d: Error getting output file stats: %v\n", i, errStat)
			continue
		}

		refStat, errStat := os.Stat(refPath)
		if errStat != nil {
			fmt.Printf("Track %d: Reference file not found\n", i)
			continue
		}

		trackInfo, _ := demuxer.GetTrackInfo(i)
		trackType := "Unknown"
		switch trackInfo.Type {
		case 1:
			trackType = "Video"
		case 2:
			trackType = "Audio"
		case 17:
			trackType = "Subtitle"
		}

		if outputStat.Size() == refStat.Size() {
			fmt.Printf("Track %d (%s): ✓ Size matches (%d bytes)\n", i, trackType, outputStat.Size())
		} else {
			sizeDiff := float64(outputStat.Size()) / float64(refStat.Size()) * 100
			fmt.Printf("Track %d (%s): ✗ Size mismatch - Output: %d, Reference: %d (%.1f%%)\n",
				i, trackType, outputStat.Size(), refStat.Size(), sizeDiff)
		}
	}
}
