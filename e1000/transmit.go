package e1000

import (
	"encoding/binary"
	"fmt"
)

// drainTx consumes the TX ring until empty, per §4.3. Per-descriptor
// faults are logged and the head is advanced past them so a single bad
// descriptor can never deadlock the ring.
func (d *Device) drainTx() {
	anyStatusRequested := false

	for !d.txRing.isEmpty() {
		buf, err := d.readRingHead(d.txRing)
		if err != nil {
			d.log.WithError(err).Warn("e1000: tx head read failed, skipping descriptor")
			d.advanceTxHead()
			continue
		}

		kind, err := decodeTxKind(buf)
		if err != nil {
			d.log.WithError(err).Warn("e1000: bad tx descriptor discriminator")
			d.advanceTxHead()
			continue
		}

		if err := d.accumulateTxDescriptor(kind, buf); err != nil {
			d.log.WithError(err).Warn("e1000: tx descriptor fault, skipping")
			d.advanceTxHead()
			continue
		}

		if reportsStatus(kind, buf) {
			setStatusDD(&buf)
			if err := d.writeRingHead(d.txRing, buf); err != nil {
				d.log.WithError(err).Warn("e1000: tx descriptor writeback failed")
			} else {
				anyStatusRequested = true
			}
		}
		d.advanceTxHead()

		if d.txSeq.eop {
			if err := d.finalizeTxSequence(); err != nil {
				d.log.WithError(err).Warn("e1000: tx sequence finalize failed")
			}
			d.txSeq.reset()
		}
	}

	d.reportTXDrainResult(anyStatusRequested)
}

func (d *Device) advanceTxHead() {
	d.txRing.advanceHead()
	d.tdh = d.txRing.head
}

// accumulateTxDescriptor feeds one descriptor into the transmit-sequence
// accumulator (§4.3 step 2).
func (d *Device) accumulateTxDescriptor(kind txDescKind, buf [descriptorSize]byte) error {
	switch kind {
	case txLegacy:
		return d.accumulateLegacy(unpackLegacyTxDesc(buf))
	case txContext:
		return d.accumulateContext(unpackContextTxDesc(buf))
	case txData:
		return d.accumulateData(unpackDataTxDesc(buf))
	default:
		return ErrBadDescriptor
	}
}

func (d *Device) accumulateLegacy(ld legacyTxDesc) error {
	if d.txSeq.context != nil {
		return fmt.Errorf("%w: legacy descriptor inside tcp sequence", ErrBadDescriptor)
	}
	if ld.cmd&txCmdIC != 0 {
		return ErrUnimplemented
	}
	if ld.buffer == 0 {
		return ErrNullTransmitBuffer
	}
	data, err := d.dmaReadBuffer(ld.buffer, int(ld.length))
	if err != nil {
		return err
	}
	d.txSeq.bytes = append(d.txSeq.bytes, data...)
	if ld.cmd&txCmdEOP != 0 {
		d.txSeq.eop = true
	}
	return nil
}

func (d *Device) accumulateContext(ctx txContext) error {
	if d.txSeq.context != nil {
		return fmt.Errorf("%w: tcp context already set for this sequence", ErrBadDescriptor)
	}
	d.txSeq.context = &ctx
	return nil
}

func (d *Device) accumulateData(dd dataTxDesc) error {
	if d.txSeq.context == nil {
		return fmt.Errorf("%w: tcp data descriptor without prior context", ErrBadDescriptor)
	}
	if !d.txSeq.latchedOpts {
		d.txSeq.insertIPChecksum = dd.popts&poptsIXSM != 0
		d.txSeq.insertTCPChecksum = dd.popts&poptsTXSM != 0
		d.txSeq.latchedOpts = true
	}
	if dd.buffer == 0 {
		return ErrNullTransmitBuffer
	}
	data, err := d.dmaReadBuffer(dd.buffer, int(dd.length))
	if err != nil {
		return err
	}
	d.txSeq.bytes = append(d.txSeq.bytes, data...)
	if dd.dcmd&txCmdEOP != 0 {
		d.txSeq.eop = true
	}
	return nil
}

func (d *Device) dmaReadBuffer(address uint64, length int) ([]byte, error) {
	if err := d.host.DMAPrepare(address, uint64(length)); err != nil {
		return nil, fmt.Errorf("%w: dma_prepare: %v", ErrDmaFailure, err)
	}
	buf := make([]byte, length)
	if err := d.host.DMARead(address, buf, 0); err != nil {
		return nil, fmt.Errorf("%w: dma_read: %v", ErrDmaFailure, err)
	}
	return buf, nil
}

func (d *Device) sendFrame(frame []byte) error {
	if _, err := d.host.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	return nil
}

// finalizeTxSequence implements §4.3 "Finalization and TSO".
func (d *Device) finalizeTxSequence() error {
	seq := &d.txSeq

	if seq.context == nil {
		return d.sendFrame(seq.bytes)
	}

	ctx := seq.context
	if !ctx.tseEnabled() {
		frame := append([]byte(nil), seq.bytes...)
		if err := applyChecksums(frame, ctx, seq.insertIPChecksum, seq.insertTCPChecksum); err != nil {
			return err
		}
		return d.sendFrame(frame)
	}

	return d.finalizeTSO(seq, ctx)
}

func (d *Device) finalizeTSO(seq *txSeqState, ctx *txContext) error {
	h := int(ctx.hdrlen)
	if h > len(seq.bytes) {
		return fmt.Errorf("%w: hdrlen exceeds accumulated bytes", ErrBadDescriptor)
	}
	header := seq.bytes[:h]
	payload := seq.bytes[h:]
	if uint32(len(payload)) != ctx.paylen {
		return fmt.Errorf("%w: payload length does not match context paylen", ErrBadDescriptor)
	}
	mss := int(ctx.mss)
	if mss <= 0 {
		return fmt.Errorf("%w: zero mss in tso context", ErrBadDescriptor)
	}

	originalTotalLen := len(seq.bytes)
	numSegments := (len(payload) + mss - 1) / mss

	for i := 0; i < numSegments; i++ {
		start := i * mss
		end := start + mss
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		packet := make([]byte, 0, h+len(chunk))
		packet = append(packet, header...)
		packet = append(packet, chunk...)

		isLast := end == len(payload)
		if err := patchTSOSegment(packet, ctx, i, isLast, originalTotalLen, seq.insertIPChecksum, seq.insertTCPChecksum); err != nil {
			return err
		}
		if err := d.sendFrame(packet); err != nil {
			return err
		}
	}
	return nil
}

const ethertypeIPv6 = 0x86DD

func isIPv6(packet []byte) bool {
	return len(packet) >= 14 && binary.BigEndian.Uint16(packet[12:14]) == ethertypeIPv6
}

// patchTSOSegment applies the per-segment header rewrites and checksum
// insertion described in §4.3's TSE-on bullet list.
func patchTSOSegment(packet []byte, ctx *txContext, segIndex int, isLast bool, originalTotalLen int, insertIP, insertTCP bool) error {
	ipcss := int(ctx.ipcss)

	// The total/payload length field counts bytes from IPCSS to the end
	// of this packet.
	ipFieldLen := len(packet) - ipcss

	if isIPv6(packet) {
		if ipcss+6 > len(packet) {
			return fmt.Errorf("%w: ipv6 header exceeds segment", ErrBadDescriptor)
		}
		binary.BigEndian.PutUint16(packet[ipcss+4:ipcss+6], uint16(ipFieldLen))
	} else {
		if ipcss+4 > len(packet) {
			return fmt.Errorf("%w: ipv4 header exceeds segment", ErrBadDescriptor)
		}
		binary.BigEndian.PutUint16(packet[ipcss+2:ipcss+4], uint16(ipFieldLen))
		id := binary.BigEndian.Uint16(packet[ipcss+4 : ipcss+6])
		binary.BigEndian.PutUint16(packet[ipcss+4:ipcss+6], id+uint16(segIndex))
	}

	tucss := int(ctx.tucss)
	if ctx.isTCP() {
		if tucss+8 > len(packet) {
			return fmt.Errorf("%w: tcp header exceeds segment", ErrBadDescriptor)
		}
		seq := binary.BigEndian.Uint32(packet[tucss+4 : tucss+8])
		seq += uint32(ctx.mss) * uint32(segIndex)
		binary.BigEndian.PutUint32(packet[tucss+4:tucss+8], seq)
		if !isLast {
			if tucss+14 > len(packet) {
				return fmt.Errorf("%w: tcp flags byte exceeds segment", ErrBadDescriptor)
			}
			packet[tucss+13] &^= 0x09 // clear FIN (bit0) and PSH (bit3)
		}
	} else {
		if tucss+6 > len(packet) {
			return fmt.Errorf("%w: udp header exceeds segment", ErrBadDescriptor)
		}
		udpLen := len(packet) - tucss
		binary.BigEndian.PutUint16(packet[tucss+4:tucss+6], uint16(udpLen))
	}

	if insertTCP {
		tucso := int(ctx.tucso)
		if tucso+2 > len(packet) {
			return fmt.Errorf("%w: tcp checksum offset exceeds segment", ErrBadDescriptor)
		}
		oldLen := uint16(originalTotalLen - tucss)
		newLen := uint16(len(packet) - tucss)
		existing := binary.BigEndian.Uint16(packet[tucso : tucso+2])
		adjusted := incrementalChecksumUpdate(existing, oldLen, newLen)
		// adjusted is itself a checksum (one's complement of the length-
		// corrected pseudo-header sum); un-complement it before seeding the
		// field so the internetChecksum pass below sums it as plain data.
		binary.BigEndian.PutUint16(packet[tucso:tucso+2], ^adjusted)

		end := checksumRangeEnd(ctx.tucse, len(packet))
		cs := internetChecksum(packet[tucss:end])
		binary.BigEndian.PutUint16(packet[tucso:tucso+2], cs)
	}

	if insertIP {
		ipcso := int(ctx.ipcso)
		if ipcso+2 > len(packet) {
			return fmt.Errorf("%w: ip checksum offset exceeds segment", ErrBadDescriptor)
		}
		end := checksumRangeEnd(ctx.ipcse, len(packet))
		cs := internetChecksum(packet[ipcss:end])
		binary.BigEndian.PutUint16(packet[ipcso:ipcso+2], cs)
	}

	return nil
}

// checksumRangeEnd resolves a CSE field (inclusive end offset, or 0 for
// "to end of packet") into an exclusive Go slice bound (§4.3).
func checksumRangeEnd(cse uint16, packetLen int) int {
	if cse == 0 {
		return packetLen
	}
	end := int(cse) + 1
	if end > packetLen {
		end = packetLen
	}
	return end
}

// applyChecksums implements the non-segmented (TSE off) checksum-insertion
// rules of §4.3.
func applyChecksums(frame []byte, ctx *txContext, insertIP, insertTCP bool) error {
	if insertIP {
		ipcss, ipcso := int(ctx.ipcss), int(ctx.ipcso)
		if ipcso+2 > len(frame) || ipcss > len(frame) {
			return fmt.Errorf("%w: ip checksum fields exceed frame", ErrBadDescriptor)
		}
		end := checksumRangeEnd(ctx.ipcse, len(frame))
		cs := internetChecksum(frame[ipcss:end])
		binary.BigEndian.PutUint16(frame[ipcso:ipcso+2], cs)
	}
	if insertTCP {
		tucss, tucso := int(ctx.tucss), int(ctx.tucso)
		if tucso+2 > len(frame) || tucss > len(frame) {
			return fmt.Errorf("%w: tcp checksum fields exceed frame", ErrBadDescriptor)
		}
		end := checksumRangeEnd(ctx.tucse, len(frame))
		cs := internetChecksum(frame[tucss:end])
		binary.BigEndian.PutUint16(frame[tucso:tucso+2], cs)
	}
	return nil
}
