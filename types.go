// Copyright 2017 OpenChirp. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blboot

import (
	"fmt"
	"time"
)

// Command names an operation in a profile's command table.
type Command string

// Boot ROM commands
const (
	CmdGetBootInfo       = Command("get_boot_info")
	CmdLoadBootHeader    = Command("load_boot_header")
	CmdLoadSegmentHeader = Command("load_segment_header")
	CmdLoadSegmentData   = Command("load_segment_data")
	CmdCheckImage        = Command("check_image")
	CmdRunImage          = Command("run_image")
)

// Flash loader commands
const (
	CmdFlashErase   = Command("flash_erase")
	CmdFlashWrite   = Command("flash_write")
	CmdFlashRead    = Command("flash_read")
	CmdFlashReadSHA = Command("flash_read_sha")
	CmdChipErase    = Command("chip_erase")
	CmdMemWrite     = Command("mem_write")
	CmdMemRead      = Command("mem_read")
)

// CommandSpec maps a command name onto the wire.
type CommandSpec struct {
	Code byte
	// Timeout is the base response budget.
	Timeout time.Duration
	// PerKiB is added to Timeout for every started KiB the command covers.
	PerKiB time.Duration
	// Reply is set when a successful response carries a payload.
	Reply bool
}

// Budget returns the response timeout for a command covering size bytes.
func (c CommandSpec) Budget(size int) time.Duration {
	kib := (size + 1023) / 1024
	return c.Timeout + time.Duration(kib)*c.PerKiB
}

// Sizes fixed by the boot ROM.
const (
	BootHeaderSize    = 176
	SegmentHeaderSize = 16
	BootInfoSize      = 20
	SHA256Size        = 32
)

// ROMErrorCode is the 16 bit failure code reported by the boot ROM.
type ROMErrorCode uint16

const (
	ROMSuccess                    = ROMErrorCode(0x0000)
	ROMFlashInitError             = ROMErrorCode(0x0001)
	ROMFlashEraseParaError        = ROMErrorCode(0x0002)
	ROMFlashEraseError            = ROMErrorCode(0x0003)
	ROMFlashWriteParaError        = ROMErrorCode(0x0004)
	ROMFlashWriteAddrError        = ROMErrorCode(0x0005)
	ROMFlashWriteError            = ROMErrorCode(0x0006)
	ROMFlashBootPara              = ROMErrorCode(0x0007)
	ROMCmdIDError                 = ROMErrorCode(0x0101)
	ROMCmdLenError                = ROMErrorCode(0x0102)
	ROMCmdCRCError                = ROMErrorCode(0x0103)
	ROMCmdSeqError                = ROMErrorCode(0x0104)
	ROMImgBootHeaderLenError      = ROMErrorCode(0x0201)
	ROMImgBootHeaderNotLoadError  = ROMErrorCode(0x0202)
	ROMImgBootHeaderMagicError    = ROMErrorCode(0x0203)
	ROMImgBootHeaderCRCError      = ROMErrorCode(0x0204)
	ROMImgBootHeaderEncryptNotFit = ROMErrorCode(0x0205)
	ROMImgBootHeaderSignNotFit    = ROMErrorCode(0x0206)
	ROMImgSegmentCntError         = ROMErrorCode(0x0207)
	ROMImgAESIVLenError           = ROMErrorCode(0x0208)
	ROMImgAESIVCRCError           = ROMErrorCode(0x0209)
	ROMImgPKLenError              = ROMErrorCode(0x020a)
	ROMImgPKCRCError              = ROMErrorCode(0x020b)
	ROMImgPKHashError             = ROMErrorCode(0x020c)
	ROMImgSignatureLenError       = ROMErrorCode(0x020d)
	ROMImgSignatureCRCError       = ROMErrorCode(0x020e)
	ROMImgSectionHeaderLenError   = ROMErrorCode(0x020f)
	ROMImgSectionHeaderCRCError   = ROMErrorCode(0x0210)
	ROMImgSectionHeaderDstError   = ROMErrorCode(0x0211)
	ROMImgSectionDataLenError     = ROMErrorCode(0x0212)
	ROMImgSectionDataDecError     = ROMErrorCode(0x0213)
	ROMImgSectionDataTLenError    = ROMErrorCode(0x0214)
	ROMImgSectionDataCRCError     = ROMErrorCode(0x0215)
	ROMImgHalfBakedError          = ROMErrorCode(0x0216)
	ROMImgHashError               = ROMErrorCode(0x0217)
	ROMImgSignParseError          = ROMErrorCode(0x0218)
	ROMImgSignError               = ROMErrorCode(0x0219)
	ROMImgDecError                = ROMErrorCode(0x021a)
	ROMImgAllInvalidError         = ROMErrorCode(0x021b)
	ROMIfRateLenError             = ROMErrorCode(0x0301)
	ROMIfRateParaError            = ROMErrorCode(0x0302)
	ROMIfPasswordError            = ROMErrorCode(0x0303)
	ROMIfPasswordClose            = ROMErrorCode(0x0304)
	ROMPLLError                   = ROMErrorCode(0xfffc)
	ROMInvasionError              = ROMErrorCode(0xfffd)
	ROMPolling                    = ROMErrorCode(0xfffe)
	ROMFail                       = ROMErrorCode(0xffff)
)

var romerr2String = map[ROMErrorCode]string{
	ROMSuccess:                    "SUCCESS",
	ROMFlashInitError:             "FLASH_INIT_ERROR",
	ROMFlashEraseParaError:        "FLASH_ERASE_PARA_ERROR",
	ROMFlashEraseError:            "FLASH_ERASE_ERROR",
	ROMFlashWriteParaError:        "FLASH_WRITE_PARA_ERROR",
	ROMFlashWriteAddrError:        "FLASH_WRITE_ADDR_ERROR",
	ROMFlashWriteError:            "FLASH_WRITE_ERROR",
	ROMFlashBootPara:              "FLASH_BOOT_PARA",
	ROMCmdIDError:                 "CMD_ID_ERROR",
	ROMCmdLenError:                "CMD_LEN_ERROR",
	ROMCmdCRCError:                "CMD_CRC_ERROR",
	ROMCmdSeqError:                "CMD_SEQ_ERROR",
	ROMImgBootHeaderLenError:      "IMG_BOOTHEADER_LEN_ERROR",
	ROMImgBootHeaderNotLoadError:  "IMG_BOOTHEADER_NOT_LOAD_ERROR",
	ROMImgBootHeaderMagicError:    "IMG_BOOTHEADER_MAGIC_ERROR",
	ROMImgBootHeaderCRCError:      "IMG_BOOTHEADER_CRC_ERROR",
	ROMImgBootHeaderEncryptNotFit: "IMG_BOOTHEADER_ENCRYPT_NOTFIT",
	ROMImgBootHeaderSignNotFit:    "IMG_BOOTHEADER_SIGN_NOTFIT",
	ROMImgSegmentCntError:         "IMG_SEGMENT_CNT_ERROR",
	ROMImgAESIVLenError:           "IMG_AES_IV_LEN_ERROR",
	ROMImgAESIVCRCError:           "IMG_AES_IV_CRC_ERROR",
	ROMImgPKLenError:              "IMG_PK_LEN_ERROR",
	ROMImgPKCRCError:              "IMG_PK_CRC_ERROR",
	ROMImgPKHashError:             "IMG_PK_HASH_ERROR",
	ROMImgSignatureLenError:       "IMG_SIGNATURE_LEN_ERROR",
	ROMImgSignatureCRCError:       "IMG_SIGNATURE_CRC_ERROR",
	ROMImgSectionHeaderLenError:   "IMG_SECTIONHEADER_LEN_ERROR",
	ROMImgSectionHeaderCRCError:   "IMG_SECTIONHEADER_CRC_ERROR",
	ROMImgSectionHeaderDstError:   "IMG_SECTIONHEADER_DST_ERROR",
	ROMImgSectionDataLenError:     "IMG_SECTIONDATA_LEN_ERROR",
	ROMImgSectionDataDecError:     "IMG_SECTIONDATA_DEC_ERROR",
	ROMImgSectionDataTLenError:    "IMG_SECTIONDATA_TLEN_ERROR",
	ROMImgSectionDataCRCError:     "IMG_SECTIONDATA_CRC_ERROR",
	ROMImgHalfBakedError:          "IMG_HALFBAKED_ERROR",
	ROMImgHashError:               "IMG_HASH_ERROR",
	ROMImgSignParseError:          "IMG_SIGN_PARSE_ERROR",
	ROMImgSignError:               "IMG_SIGN_ERROR",
	ROMImgDecError:                "IMG_DEC_ERROR",
	ROMImgAllInvalidError:         "IMG_ALL_INVALID_ERROR",
	ROMIfRateLenError:             "IF_RATE_LEN_ERROR",
	ROMIfRateParaError:            "IF_RATE_PARA_ERROR",
	ROMIfPasswordError:            "IF_PASSWORDERROR",
	ROMIfPasswordClose:            "IF_PASSWORDCLOSE",
	ROMPLLError:                   "PLL_ERROR",
	ROMInvasionError:              "INVASION_ERROR",
	ROMPolling:                    "POLLING",
	ROMFail:                       "FAIL",
}

func (c ROMErrorCode) String() string {
	if str, ok := romerr2String[c]; ok {
		return str
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}
