// Package n0110 talks to the external flash of a NumWorks N0110 board from
// a host, through an FT232H in MPSSE mode. The on-target driver lives in
// package flash on top of package qspi; this package supplies the SPI link
// those drivers run on when the MCU is held in reset.
//
// # References:
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//   - [FTDI-AN_135]: FTDI MPSSE Basics (https://ftdichip.com/wp-content/uploads/2020/08/AN_135_MPSSE_Basics.pdf)
//
// MCU
//   - [RM0431]: STM32F72xxx and STM32F73xxx reference manual, 13 Quad-SPI interface (QUADSPI)
//
// SPI Flash
//   - [AT25SF641]: Adesto AT25SF641 64-Mbit SPI Serial Flash datasheet
//   - [W25Q64JV]: Winbond W25Q64JV Serial Flash Memory datasheet
//   - [W25Q128]: W25Q128JV-DTR Winbond Serial Flash Memory (https://www.winbond.com/resource-files/W25Q128JV_DTR%20RevD%2012232024%20Plus.pdf)
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet (could not find the official public URL)
package n0110
